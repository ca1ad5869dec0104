package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound はstateが未発行、期限切れ、または消費済みであることを示す。
var ErrStateNotFound = errors.New("oauth state not found")

const stateKeyPrefix = "clubster:oauth_state:"

// StateStore はstrictモードで発行したOAuth stateを保存する。
// Consumeは1つのstateに対して一度だけ成功する。
type StateStore interface {
	Save(ctx context.Context, nonce, managerID string, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) (string, error)
}

// NewStateNonce は推測困難なstate値を生成する。
func NewStateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RedisStateStore はRedisにstateを保存するStateStore。
type RedisStateStore struct {
	client redis.Cmdable
}

// NewRedisStateStore はRedisStateStoreを生成する。
func NewRedisStateStore(client redis.Cmdable) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save はnonceとマネージャーIDの対応をTTL付きで保存する。
func (s *RedisStateStore) Save(ctx context.Context, nonce, managerID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stateKeyPrefix+nonce, managerID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Consume はnonceに対応するマネージャーIDを取得し、同時に削除する。
func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (string, error) {
	managerID, err := s.client.GetDel(ctx, stateKeyPrefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return managerID, nil
}

// MemoryStateStore はプロセス内にstateを保持するStateStore。
// 単一インスタンスの開発環境とテストで使う。
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryStateEntry
	now     func() time.Time
}

type memoryStateEntry struct {
	managerID string
	expiresAt time.Time
}

// NewMemoryStateStore はMemoryStateStoreを生成する。
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		entries: make(map[string]memoryStateEntry),
		now:     time.Now,
	}
}

// Save はnonceとマネージャーIDの対応をTTL付きで保存する。
func (s *MemoryStateStore) Save(_ context.Context, nonce, managerID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[nonce] = memoryStateEntry{managerID: managerID, expiresAt: now.Add(ttl)}
	return nil
}

// Consume はnonceに対応するマネージャーIDを取得し、同時に削除する。
func (s *MemoryStateStore) Consume(_ context.Context, nonce string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[nonce]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(s.entries, nonce)
	if !s.now().Before(e.expiresAt) {
		return "", ErrStateNotFound
	}
	return e.managerID, nil
}

var (
	_ StateStore = (*RedisStateStore)(nil)
	_ StateStore = (*MemoryStateStore)(nil)
)
