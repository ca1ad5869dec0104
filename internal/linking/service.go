// Package linking はマネージャーのクラブとStripe Connectアカウントを連携する
// 2段階のOAuthフロー（認可URL発行とコード交換・永続化）を提供する。
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/clubster/internal/auth"
	"github.com/hitoshi/clubster/internal/metrics"
	"github.com/hitoshi/clubster/internal/model"
)

// 後段の書き込みはクライアント切断の影響を受けないよう独立したタイムアウトで行う
const (
	persistTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Provider はStripe Connectの認可URL生成とコード交換のインターフェース。
type Provider interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*auth.StripeCredentials, error)
}

// ClubLinker はクラブにStripeアカウントを保存するインターフェース。
// repository.ClubRepositoryの部分集合として定義する。
type ClubLinker interface {
	UpdateStripeAccount(ctx context.Context, managerID, stripeAccountID string) error
}

// PendingLinkPublisher は永続化に失敗した連携を再調整キューに送るインターフェース。
type PendingLinkPublisher interface {
	PublishPendingLink(ctx context.Context, link model.PendingLink) error
}

// Config は連携サービスの設定。
type Config struct {
	// StrictState がtrueの場合、stateをサーバー側で発行・保存し、
	// コールバック時にmanagerIdとの一致を検証する。
	StrictState bool
	StateTTL    time.Duration
}

// CompleteInput はコールバックで受け取る値。
type CompleteInput struct {
	Code      string
	ManagerID string
	State     string
}

// CompleteResult は連携完了の結果。
type CompleteResult struct {
	StripeUserID string
}

// Service はStripe連携のビジネスロジックを提供する。
type Service struct {
	provider  Provider
	clubs     ClubLinker
	states    auth.StateStore
	publisher PendingLinkPublisher
	metrics   metrics.MetricsCollector
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。
// publisherがnilの場合、永続化失敗はログにのみ残る。
func NewService(
	provider Provider,
	clubs ClubLinker,
	states auth.StateStore,
	publisher PendingLinkPublisher,
	m metrics.MetricsCollector,
	config Config,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	if config.StateTTL <= 0 {
		config.StateTTL = 10 * time.Minute
	}
	return &Service{
		provider:  provider,
		clubs:     clubs,
		states:    states,
		publisher: publisher,
		metrics:   m,
		config:    config,
		now:       time.Now,
	}
}

// Initiate はStripe Connectの認可URLを生成する。
// セッションが無ければ未認証エラー、マネージャー以外は権限エラーを返す。
// lenientモードではマネージャーIDをそのままstateにする。
func (s *Service) Initiate(ctx context.Context, session *model.Session) (string, error) {
	if session == nil || session.UserID == "" {
		return "", model.NewUnauthorizedError()
	}
	if !session.IsManager() {
		return "", model.NewForbiddenError()
	}

	state := session.UserID
	if s.config.StrictState {
		if s.states == nil {
			return "", fmt.Errorf("strict state mode requires a state store")
		}
		nonce, err := auth.NewStateNonce()
		if err != nil {
			return "", err
		}
		if err := s.states.Save(ctx, nonce, session.UserID, s.config.StateTTL); err != nil {
			return "", fmt.Errorf("stateの保存に失敗しました: %w", err)
		}
		state = nonce
	}

	slog.Info("stripe onboarding initiated",
		slog.String("user_id", session.UserID),
		slog.Bool("strict_state", s.config.StrictState),
	)
	return s.provider.AuthorizeURL(state), nil
}

// Complete は認可コードを交換し、得られたアカウントIDをクラブに保存する。
// 永続化に失敗した場合は再調整キューにPendingLinkを送ってから500相当のエラーを返す。
func (s *Service) Complete(ctx context.Context, in CompleteInput) (*CompleteResult, error) {
	// 1. 入力検証（外部呼び出しの前に行う）
	if in.Code == "" {
		s.metrics.RecordStripeLink(metrics.LinkResultValidationError)
		return nil, model.NewMissingFieldError("code")
	}
	if in.ManagerID == "" {
		s.metrics.RecordStripeLink(metrics.LinkResultValidationError)
		return nil, model.NewMissingFieldError("managerId")
	}

	// 2. strictモード: stateを消費し、managerIdとの一致を確認
	if s.config.StrictState {
		if err := s.verifyState(ctx, in); err != nil {
			s.metrics.RecordStripeLink(metrics.LinkResultInvalidState)
			return nil, err
		}
	}

	// 3. 認可コードの交換
	start := s.now()
	creds, err := s.provider.ExchangeCode(ctx, in.Code)
	s.metrics.RecordStripeExchangeLatency(s.now().Sub(start))
	if err != nil {
		s.metrics.RecordStripeLink(metrics.LinkResultProviderError)
		return nil, exchangeError(in.ManagerID, err)
	}

	// 4. クラブへの永続化
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.clubs.UpdateStripeAccount(persistCtx, in.ManagerID, creds.StripeUserID); err != nil {
		s.metrics.RecordStripeLink(metrics.LinkResultPersistenceError)
		slog.Error("failed to persist stripe account",
			slog.String("manager_id", in.ManagerID),
			slog.String("stripe_user_id", creds.StripeUserID),
			slog.String("error", err.Error()),
		)
		s.enqueuePendingLink(ctx, in.ManagerID, creds.StripeUserID)
		return nil, model.NewPersistenceFailedError()
	}

	s.metrics.RecordStripeLink(metrics.LinkResultSuccess)
	slog.Info("stripe account linked",
		slog.String("manager_id", in.ManagerID),
		slog.String("stripe_user_id", creds.StripeUserID),
		slog.Bool("livemode", creds.Livemode),
	)
	return &CompleteResult{StripeUserID: creds.StripeUserID}, nil
}

func (s *Service) verifyState(ctx context.Context, in CompleteInput) error {
	if in.State == "" || s.states == nil {
		return model.NewInvalidStateError()
	}
	managerID, err := s.states.Consume(ctx, in.State)
	if err != nil {
		if !errors.Is(err, auth.ErrStateNotFound) {
			slog.Error("failed to consume oauth state",
				slog.String("manager_id", in.ManagerID),
				slog.String("error", err.Error()),
			)
		}
		return model.NewInvalidStateError()
	}
	if managerID != in.ManagerID {
		slog.Warn("oauth state issued for another manager",
			slog.String("manager_id", in.ManagerID),
		)
		return model.NewInvalidStateError()
	}
	return nil
}

// exchangeError はコード交換の失敗をクライアント向けエラーに変換する。
func exchangeError(managerID string, err error) error {
	var pe *auth.ProviderError
	switch {
	case errors.As(err, &pe):
		slog.Warn("stripe rejected code exchange",
			slog.String("manager_id", managerID),
			slog.String("provider_code", pe.Code),
			slog.String("error", pe.Message),
		)
		return model.NewProviderError(pe.Message)
	case errors.Is(err, auth.ErrMissingStripeUserID):
		slog.Warn("stripe token response without stripe_user_id",
			slog.String("manager_id", managerID),
		)
		return model.NewMissingStripeUserIDError()
	default:
		slog.Error("stripe token request failed",
			slog.String("manager_id", managerID),
			slog.String("error", err.Error()),
		)
		return model.NewProviderError("failed to exchange authorization code with stripe")
	}
}

// enqueuePendingLink はPendingLinkを送信する。失敗してもログに残すだけで呼び出し元には返さない。
func (s *Service) enqueuePendingLink(ctx context.Context, managerID, stripeUserID string) {
	if s.publisher == nil {
		slog.Error("pending link not enqueued: no publisher configured",
			slog.String("manager_id", managerID),
			slog.String("stripe_user_id", stripeUserID),
		)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	link := model.PendingLink{
		ManagerID:    managerID,
		StripeUserID: stripeUserID,
		Attempt:      1,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.publisher.PublishPendingLink(pubCtx, link); err != nil {
		slog.Error("failed to enqueue pending link",
			slog.String("manager_id", managerID),
			slog.String("stripe_user_id", stripeUserID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Info("pending link enqueued",
		slog.String("manager_id", managerID),
		slog.String("stripe_user_id", stripeUserID),
	)
}
