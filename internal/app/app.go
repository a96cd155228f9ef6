package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/hanasu/internal/auth"
	"github.com/hitoshi/hanasu/internal/chat"
	"github.com/hitoshi/hanasu/internal/config"
	"github.com/hitoshi/hanasu/internal/database"
	"github.com/hitoshi/hanasu/internal/emotion"
	"github.com/hitoshi/hanasu/internal/handler"
	"github.com/hitoshi/hanasu/internal/logger"
	"github.com/hitoshi/hanasu/internal/metrics"
	"github.com/hitoshi/hanasu/internal/middleware"
	"github.com/hitoshi/hanasu/internal/repository"
	"github.com/hitoshi/hanasu/internal/speech"
	"github.com/hitoshi/hanasu/internal/ws"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", string(cfg.Env)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// repos はrunServeが使用するリポジトリ一式。
// DATABASE_URLの有無でPostgres実装とインメモリ実装を切り替える。
type repos struct {
	user    repository.UserRepository
	session repository.SessionRepository
	chat    repository.ChatRepository
	speech  repository.SpeechRepository
}

// buildRepos はリポジトリ一式を構築する。
// DATABASE_URLが設定されていればPostgresに接続し、未設定（開発モード）なら
// インメモリストアにフォールバックする。closeFnはDB接続のクローズ関数。
func buildRepos(cfg *config.Config) (*repos, func() error, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, using in-memory store")
		store := repository.NewMemoryStore()
		r := &repos{
			user:    store,
			session: store.SessionRepo(),
			chat:    store.ChatRepo(),
			speech:  store.SpeechRepo(),
		}
		return r, func() error { return nil }, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	r := &repos{
		user:    repository.NewPostgresUserRepo(db),
		session: repository.NewPostgresSessionRepo(db),
		chat:    repository.NewPostgresChatRepo(db),
		speech:  repository.NewPostgresSpeechRepo(db),
	}
	return r, db.Close, nil
}

// runServe はAPIサーバーモードで起動する。
// リポジトリと全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. リポジトリの初期化
	repos, closeDB, err := buildRepos(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	// 2. OIDCプロバイダーの初期化（本番モードのみ）
	var oidcProvider *auth.OIDCProvider
	if cfg.IsProduction() {
		oidcProvider = auth.NewOIDCProvider(auth.OIDCConfig{
			IssuerURL:         cfg.IssuerURL,
			ClientID:          cfg.OIDCClientID,
			ClientSecret:      cfg.OIDCClientSecret,
			RedirectURL:       cfg.OIDCRedirectURL,
			DiscoveryCacheTTL: cfg.DiscoveryCacheTTL,
		})
	}

	// 3. ドメインサービスの初期化
	authService := auth.NewService(
		oidcProvider, repos.user, repos.session,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	analyzer := emotion.NewClient(emotion.ClientConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
	})

	chatService := chat.NewService(repos.chat, analyzer)
	speechService := speech.NewService(repos.speech)

	// 4. 認証基盤の初期化
	resolver := auth.NewResolver(repos.user, repos.session, cfg.SessionSecret)

	var refresher middleware.TokenRefresher
	if oidcProvider != nil {
		refresher = oidcProvider
	}
	authGate := middleware.NewAuthGate(resolver, repos.session, refresher, middleware.AuthGateConfig{
		Production: cfg.IsProduction(),
	})

	// 5. メトリクスとWebSocketマネージャーの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	wsManager := ws.NewManager(resolver, analyzer, collector, cfg.CORSAllowedOrigin)

	// 6. レート制限の初期化
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = perMinute(cfg.RateLimitGeneral)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitChat > 0 {
		rateLimiterCfg.ChatRate = perMinute(cfg.RateLimitChat)
		rateLimiterCfg.ChatBurst = cfg.RateLimitChat
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	var loginProvider handler.LoginURLProvider
	if oidcProvider != nil {
		loginProvider = oidcProvider
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		AuthGate:          authGate,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthService:   authService,
		AuthResolver:  resolver,
		LoginProvider: loginProvider,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionSecret: cfg.SessionSecret,
			SessionMaxAge: cfg.SessionMaxAge,
			DevMode:       !cfg.IsProduction(),
		},

		SpeechService: speechService,
		ChatService:   chatService,

		WSHandler: wsManager.Handler(),

		MetricsRegistry: registry,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		// WebSocket接続はHijackされるためWriteTimeoutの影響を受けない
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// perMinute はreq/min単位の値をrate.Limit（req/sec）に変換する。
func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
