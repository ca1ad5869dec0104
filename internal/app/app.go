package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/clubster/internal/auth"
	"github.com/hitoshi/clubster/internal/club"
	"github.com/hitoshi/clubster/internal/config"
	"github.com/hitoshi/clubster/internal/database"
	"github.com/hitoshi/clubster/internal/handler"
	"github.com/hitoshi/clubster/internal/linking"
	"github.com/hitoshi/clubster/internal/logger"
	"github.com/hitoshi/clubster/internal/metrics"
	"github.com/hitoshi/clubster/internal/middleware"
	"github.com/hitoshi/clubster/internal/queue"
	"github.com/hitoshi/clubster/internal/repository"
	"github.com/hitoshi/clubster/internal/security"
	"github.com/hitoshi/clubster/internal/worker/reconcile"
)

const (
	shutdownTimeout  = 30 * time.Second
	startupTimeout   = 10 * time.Second
	workerPrefetch   = 4
	healthcheckLimit = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envを読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 設定の読み込みエラーもJSONで出力できるよう、先にログを初期化する
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting clubster",
		slog.String("command", string(cmd)),
		slog.String("app_kind", string(cfg.AppKind)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// PolicyFor はアプリ種別に対応するアクセス制御ポリシーを返す。
func PolicyFor(kind config.AppKind) middleware.AccessPolicy {
	if kind == config.AppKindManager {
		return middleware.ManagerPolicy()
	}
	return middleware.CustomerPolicy()
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続（プロセス全体で1つのプール）
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリとクラブサービス
	clubRepo := repository.NewPostgresClubRepo(db)
	clubService := club.NewService(clubRepo, security.NewTextSanitizer())

	// 3. Stripe Connect（外向き通信はSSRFガード付きクライアントで行う）
	guard := security.NewOutboundGuard()
	for _, endpoint := range []string{cfg.StripeAuthURL, cfg.StripeTokenURL} {
		if err := guard.ValidateEndpoint(endpoint); err != nil {
			return fmt.Errorf("invalid stripe endpoint %q: %w", endpoint, err)
		}
	}
	provider := auth.NewStripeConnectProvider(auth.StripeConnectConfig{
		ClientID:     cfg.StripeClientID,
		ClientSecret: cfg.StripeSecretKey,
		RedirectURL:  cfg.StripeRedirectURL,
		Scope:        cfg.StripeScope,
		AuthURL:      cfg.StripeAuthURL,
		TokenURL:     cfg.StripeTokenURL,
	}, guard.NewSafeClient(cfg.StripeHTTPTimeout))

	// 4. strictモードのstate保存先
	var states auth.StateStore
	if cfg.StripeStrictState {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		states = auth.NewRedisStateStore(rdb)
	}

	// 5. 再調整キュー（接続できなくてもサーバーは起動する）
	var pendingLinks linking.PendingLinkPublisher
	publisher, err := queue.NewPublisher(cfg.AMQPURL, cfg.ReconcileQueue)
	if err != nil {
		slog.Warn("reconciliation queue unavailable, pending links will only be logged",
			slog.String("error", err.Error()),
		)
	} else {
		defer publisher.Close()
		pendingLinks = publisher
	}

	// 6. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	linkingService := linking.NewService(provider, clubRepo, states, pendingLinks, collector, linking.Config{
		StrictState: cfg.StripeStrictState,
		StateTTL:    cfg.OAuthStateTTL,
	})

	// 7. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCallback))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Policy:             PolicyFor(cfg.AppKind),
		Sessions:           auth.NewSessionVerifier(cfg.SupabaseJWTSecret, cfg.SessionCookieName),
		Clubs:              clubService,
		Metrics:            collector,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CallbackCSRF:   cfg.StripeStrictState,
		RateLimiter:    rateLimiter,
		HSTS:           cfg.CookieSecure,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		LinkingService: linkingService,
		ClubService:    clubService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting",
		slog.String("addr", server.Addr),
		slog.String("app_kind", string(cfg.AppKind)),
		slog.Bool("strict_state", cfg.StripeStrictState),
	)
	return serveUntilDone(ctx, server)
}

// runWorker はワーカーモードで起動する。
// 再調整キューを購読し、永続化に失敗したStripe連携をクラブに再適用する。
// /healthと/metricsを公開する運用用サーバーも併せて起動する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	consumer, err := queue.NewConsumer(cfg.AMQPURL, cfg.ReconcileQueue, workerPrefetch)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumer.Close()

	publisher, err := queue.NewPublisher(cfg.AMQPURL, cfg.ReconcileQueue)
	if err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}
	defer publisher.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	reconciler := reconcile.NewReconciler(
		repository.NewPostgresClubRepo(db), publisher, collector,
		slog.Default(), cfg.ReconcileMaxAttempts,
	)

	opsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg, handler.NewHealthHandler(db)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opsErr := make(chan error, 1)
	go func() {
		opsErr <- serveUntilDone(workerCtx, opsServer)
	}()

	deliveries, err := consumer.Deliveries(workerCtx)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", cfg.ReconcileQueue, err)
	}

	slog.Info("worker starting",
		slog.String("queue", cfg.ReconcileQueue),
		slog.Int("max_attempts", cfg.ReconcileMaxAttempts),
	)

	runErr := reconciler.Run(workerCtx, deliveries)
	cancel()
	if err := <-opsErr; err != nil {
		slog.Error("ops server error", slog.String("error", err.Error()))
	}
	if runErr != nil {
		return fmt.Errorf("reconciler stopped: %w", runErr)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: healthcheckLimit}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// serveUntilDone はctxがキャンセルされるまでサーバーを動かし、その後グレースフルに停止する。
func serveUntilDone(ctx context.Context, server *http.Server) error {
	listenErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...", slog.String("addr", server.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("server stopped gracefully", slog.String("addr", server.Addr))
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// newRegistry はGo/プロセスのメトリクスを含むレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
