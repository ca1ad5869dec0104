// Package club はクラブ登録と参照のドメインロジックを提供する。
package club

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/clubster/internal/model"
	"github.com/hitoshi/clubster/internal/repository"
	"github.com/hitoshi/clubster/internal/security"
)

// maxNameLength はクラブ名の最大文字数（ルーン数）。
const maxNameLength = 100

// Service はクラブのサービス層。
type Service struct {
	repo      repository.ClubRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ClubRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// HasClub はマネージャーのクラブが登録済みかを返す。
// アクセス制御ミドルウェアのクラブゲートから呼ばれる。
func (s *Service) HasClub(ctx context.Context, managerID string) (bool, error) {
	c, err := s.repo.FindByManagerID(ctx, managerID)
	if err != nil {
		return false, fmt.Errorf("クラブの取得に失敗しました: %w", err)
	}
	return c != nil, nil
}

// GetByManager はマネージャーのクラブを返す。未登録の場合はCLUB_NOT_FOUNDを返す。
func (s *Service) GetByManager(ctx context.Context, managerID string) (*model.Club, error) {
	c, err := s.repo.FindByManagerID(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("クラブの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewClubNotFoundError()
	}
	return c, nil
}

// Create はマネージャーのクラブを登録する。
// クラブ名はHTMLを除去してから1〜100文字であることを検証する。
func (s *Service) Create(ctx context.Context, session *model.Session, rawName string) (*model.Club, error) {
	if session == nil || session.UserID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if !session.IsManager() {
		return nil, model.NewForbiddenError()
	}

	name := s.sanitizer.SanitizeText(rawName)
	if name == "" {
		return nil, model.NewInvalidClubNameError("name is empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewInvalidClubNameError(fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}

	now := s.now()
	c := &model.Club{
		ID:           uuid.New().String(),
		ManagerID:    session.UserID,
		Name:         name,
		Verified:     false,
		StripeStatus: model.StripeStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrClubAlreadyExists) {
			return nil, model.NewClubAlreadyExistsError()
		}
		return nil, fmt.Errorf("クラブの作成に失敗しました: %w", err)
	}

	slog.Info("club created",
		slog.String("user_id", session.UserID),
		slog.String("club_id", c.ID),
	)
	return c, nil
}
