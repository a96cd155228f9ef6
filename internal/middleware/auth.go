// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/hanasu/internal/auth"
	"github.com/hitoshi/hanasu/internal/model"
	"github.com/hitoshi/hanasu/internal/repository"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに解決済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// TokenRefresher はトークンリフレッシュに必要なインターフェース。
// auth.OIDCProviderの部分集合として定義する。
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error)
}

// AuthGateConfig は認証ゲートの設定。
type AuthGateConfig struct {
	// Production がtrueの場合、トークン有効期限の検証と
	// 1回限りのリフレッシュ試行を行う。
	Production bool
}

// AuthGate は保護ルートに適用する認証ガード。
// Token/Session Resolverが有効なIdentityを解決した場合のみリクエストを通す。
type AuthGate struct {
	resolver    *auth.Resolver
	sessionRepo repository.SessionRepository
	refresher   TokenRefresher // 本番モードのみ。開発モードではnil
	config      AuthGateConfig
	now         func() time.Time // テスト用に差し替え可能
}

// NewAuthGate はAuthGateを生成する。
// refresherは開発モードではnilを許容する。
func NewAuthGate(resolver *auth.Resolver, sessionRepo repository.SessionRepository, refresher TokenRefresher, config AuthGateConfig) *AuthGate {
	return &AuthGate{
		resolver:    resolver,
		sessionRepo: sessionRepo,
		refresher:   refresher,
		config:      config,
		now:         time.Now,
	}
}

// Middleware は認証ゲートのミドルウェアを返す。
// 解決済みユーザーをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func (g *AuthGate) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Identityの解決（セッション優先、次にベアラートークン）
			user, session, err := g.resolver.ResolveHTTP(r.Context(), r)
			if err != nil {
				slog.Error("failed to resolve identity", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("認証情報の解決に失敗しました"))
				return
			}
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
				return
			}

			// 2. 本番モード: セッション経由の場合はトークン有効期限を検証する。
			// 期限切れならリフレッシュを1回だけ試行し、失敗したら401。
			// ベアラートークン経由（session == nil）は有効期限を持たない。
			if g.config.Production && session != nil && session.TokenExpired(g.now()) {
				if err := g.refreshSession(r.Context(), session); err != nil {
					slog.Warn("token refresh failed",
						slog.String("user_id", user.ID),
						slog.String("error", err.Error()),
					)
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
					return
				}
			}

			// 3. 解決済みユーザーをコンテキストに注入
			ctx := ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// refreshSession はセッションのトークンをリフレッシュし、ストアに反映する。
// リフレッシュトークンがない場合は即座に失敗する。リトライは行わない。
func (g *AuthGate) refreshSession(ctx context.Context, session *model.Session) error {
	if g.refresher == nil {
		return fmt.Errorf("no token refresher configured")
	}
	if session.RefreshToken == "" {
		return fmt.Errorf("no refresh token in session")
	}

	tokens, err := g.refresher.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return err
	}

	session.AccessToken = tokens.AccessToken
	session.RefreshToken = tokens.RefreshToken
	session.TokenExpiresAt = tokens.ExpiresAt

	if err := g.sessionRepo.UpdateTokens(ctx, session); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	slog.Info("session tokens refreshed", slog.String("user_id", session.UserID))
	return nil
}

// UserFromContext はリクエストコンテキストから解決済みユーザーを取得する。
// 認証ゲートを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストに解決済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
