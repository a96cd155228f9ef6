package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hanasu/internal/metrics"
	"github.com/hitoshi/hanasu/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	AuthGate          *middleware.AuthGate
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService   AuthServiceInterface
	AuthResolver  IdentityResolver
	LoginProvider LoginURLProvider
	AuthConfig    AuthHandlerConfig

	// 発話練習
	SpeechService SpeechServiceInterface

	// 感情サポートチャット
	ChatService ChatServiceInterface

	// WebSocketエンドポイント（ws.Managerが生成したハンドラー）
	WSHandler http.HandlerFunc

	// メトリクス
	MetricsRegistry *prometheus.Registry
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → AuthGate → RateLimit(General)
//
// 認証ルート（/api/auth/*, /api/login, /api/callback, /api/logout）と
// WebSocketエンドポイント（/ws）は認証ゲートの外に配置する。
// /wsはハンドシェイク・インバンド認証で独自に認証するため。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthResolver, deps.LoginProvider, deps.AuthConfig)
	speechHandler := NewSpeechHandler(deps.SpeechService)
	chatHandler := NewChatHandler(deps.ChatService)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealth)

	if deps.MetricsRegistry != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsRegistry).ServeHTTP)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
		r.Get("/user", authHandler.Me)
		r.Get("/session", authHandler.SessionDebug)
	})

	// ログインフロー（開発モードは即ログイン、本番はOIDCリダイレクト）
	r.Get("/api/login", authHandler.LoginFlow)
	r.Get("/api/callback", authHandler.OIDCCallback)
	r.Get("/api/logout", authHandler.Logout)

	// WebSocket（認証はハンドシェイクとインバンドauthフレームで行う）
	if deps.WSHandler != nil {
		r.Get("/ws", deps.WSHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: AuthGate → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthGate.Middleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 発話練習
		r.Route("/api/speech", func(r chi.Router) {
			r.Post("/session", speechHandler.CreateSession)
			r.Post("/record", speechHandler.Record)
			r.Post("/assessment", speechHandler.Assess)
			r.Get("/progress", speechHandler.Progress)
		})

		// 感情サポートチャット
		r.Route("/api/chat", func(r chi.Router) {
			r.Post("/session", chatHandler.CreateSession)

			// メッセージ送信は外部API呼び出しを伴うため専用レート制限を追加
			r.With(deps.RateLimiter.ChatMiddleware()).Post("/message", chatHandler.SendMessage)

			r.Get("/messages/{id}", chatHandler.ListMessages)
		})
	})

	return r
}

// handleHealth はロードバランサー向けのヘルスチェック応答を返す。
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
