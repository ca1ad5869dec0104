package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/clubster/internal/metrics"
	"github.com/hitoshi/clubster/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// アクセス制御
	Policy   middleware.AccessPolicy
	Sessions middleware.SessionResolver
	Clubs    middleware.ClubChecker
	Metrics  metrics.MetricsCollector

	// ミドルウェア設定
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter
	HSTS               bool

	// CallbackCSRF がtrueの場合、Stripeコールバックにも二重送信Cookieを要求する。
	// falseの場合コールバックは{code, managerId}のJSON POSTのみで受け付ける。
	CallbackCSRF bool

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	LinkingService LinkingServiceInterface
	ClubService    ClubServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → Logging → SecurityHeaders → Access
//	  /api/*:                CORS → CSRF → RateLimit(General)
//	  /api/stripe/callback:  CORS → [CSRF] → RateLimit(Callback)
//
// /health と /metrics はアクセス制御の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stripeHandler := NewStripeHandler(deps.LinkingService, deps.ClubService)
	clubHandler := NewClubHandler(deps.ClubService)

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- アクセス制御配下 ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAccessMiddleware(deps.Policy, deps.Sessions, deps.Clubs, deps.Metrics))

		// APIは公開パス扱いで、各ハンドラーがセッションを検査する
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))

			csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

			r.Group(func(r chi.Router) {
				r.Use(csrf)
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
				r.Get("/stripe/onboarding", stripeHandler.Onboarding)
				r.Get("/stripe/status", stripeHandler.Status)
				r.Post("/clubs", clubHandler.Create)
				r.Get("/clubs/me", clubHandler.GetMine)
			})

			callback := chi.Middlewares{deps.RateLimiter.CallbackMiddleware()}
			if deps.CallbackCSRF {
				callback = append(chi.Middlewares{csrf}, callback...)
			}
			r.With(callback...).Post("/stripe/callback", stripeHandler.Callback)
		})

		// 画面（フロントエンドが描画する）
		r.Get("/*", NewPageHandler(deps.Policy.App))
	})

	return r
}
