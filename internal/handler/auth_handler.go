// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/hanasu/internal/auth"
	"github.com/hitoshi/hanasu/internal/middleware"
	"github.com/hitoshi/hanasu/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email string) (*model.User, *model.Session, error)
	Signup(ctx context.Context, input auth.SignupInput) (*model.User, *model.Session, error)
	MockLogin(ctx context.Context, signupData *auth.SignupInput) (*model.User, *model.Session, error)
	HandleOIDCCallback(ctx context.Context, code string) (*model.User, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// IdentityResolver は認証ハンドラーが必要とするResolverインターフェース。
type IdentityResolver interface {
	ResolveHTTP(ctx context.Context, req *http.Request) (*model.User, *model.Session, error)
}

// LoginURLProvider はOIDC認可URLの生成インターフェース。
// 本番モードのみ使用する。開発モードではnil。
type LoginURLProvider interface {
	GetLoginURL(ctx context.Context, state string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionSecret string // セッションCookieのHMAC署名キー
	SessionMaxAge int    // セッションCookieの有効期間（秒）
	DevMode       bool   // trueの場合 GET /api/login はモックログインとして動作する
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	resolver IdentityResolver
	oidc     LoginURLProvider
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// oidcは開発モードではnilを許容する。
func NewAuthHandler(service AuthServiceInterface, resolver IdentityResolver, oidc LoginURLProvider, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		resolver: resolver,
		oidc:     oidc,
		config:   config,
	}
}

// loginResponse はログイン・サインアップ成功時のレスポンス。
// authTokenはベアラートークンとしてWebSocket接続等に使用できる。
type loginResponse struct {
	Success   bool        `json:"success"`
	User      *model.User `json:"user"`
	AuthToken string      `json:"authToken"`
}

// Login はローカルログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("email"))
		return
	}

	user, session, err := h.service.Login(r.Context(), req.Email)
	if err != nil {
		h.writeAuthError(w, err, http.StatusUnauthorized)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: user, AuthToken: user.ID})
}

// Signup はローカルサインアップを処理する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input auth.SignupInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body"))
		return
	}

	user, session, err := h.service.Signup(r.Context(), input)
	if err != nil {
		h.writeAuthError(w, err, http.StatusBadRequest)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: user, AuthToken: user.ID})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/user
// セッションCookieまたはベアラートークンのどちらでも解決できる。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _, err := h.resolver.ResolveHTTP(r.Context(), r)
	if err != nil {
		slog.Error("failed to resolve identity", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if user == nil {
		// 認証情報の提示自体がない場合は401、提示されたが解決できない場合は404
		if !hasCredentials(r) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// SessionDebug は現在のセッション状態を返すデバッグ用エンドポイント。
// GET /api/auth/session
func (h *AuthHandler) SessionDebug(w http.ResponseWriter, r *http.Request) {
	user, session, err := h.resolver.ResolveHTTP(r.Context(), r)
	if err != nil {
		slog.Error("failed to resolve identity", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	resp := map[string]any{
		"session":         nil,
		"user":            user,
		"isAuthenticated": user != nil,
	}
	if session != nil {
		resp["session"] = map[string]any{
			"id":        session.ID,
			"userId":    session.UserID,
			"expiresAt": session.ExpiresAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout はセッションを破棄する。
// GET /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if sessionID, ok := auth.DecodeSessionCookie(h.config.SessionSecret, cookie.Value); ok {
			if logoutErr := h.service.Logout(r.Context(), sessionID); logoutErr != nil {
				slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
				// ログアウト失敗してもCookieはクリアする
			}
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// LoginFlow はログインフローを開始する。
// GET /api/login
// 開発モード: signupDataクエリ（JSON）を反映したモックログインを行い、
// userTypeに応じた画面にリダイレクトする。
// 本番モード: OIDC認可エンドポイントへリダイレクトする。
func (h *AuthHandler) LoginFlow(w http.ResponseWriter, r *http.Request) {
	if h.config.DevMode {
		h.devLogin(w, r)
		return
	}
	h.oidcLogin(w, r)
}

// devLogin は開発モードのモックログインを処理する。
func (h *AuthHandler) devLogin(w http.ResponseWriter, r *http.Request) {
	var signupData *auth.SignupInput
	if raw := r.URL.Query().Get("signupData"); raw != "" {
		signupData = &auth.SignupInput{}
		if err := json.Unmarshal([]byte(raw), signupData); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("signupData"))
			return
		}
	}

	user, session, err := h.service.MockLogin(r.Context(), signupData)
	if err != nil {
		slog.Error("mock login failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, redirectPathFor(user.UserType), http.StatusFound)
}

// oidcLogin はOIDC認可フローを開始する。
func (h *AuthHandler) oidcLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url, err := h.oidc.GetLoginURL(r.Context(), state)
	if err != nil {
		slog.Error("failed to build oidc login url", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OIDCCallback はOIDCコールバックを処理する。
// GET /api/callback?code=xxx&state=yyy
func (h *AuthHandler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("state"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("code"))
		return
	}

	// 3. 認証処理
	user, session, err := h.service.HandleOIDCCallback(r.Context(), code)
	if err != nil {
		slog.Error("oidc callback failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, h.config.BaseURL+redirectPathFor(user.UserType), http.StatusTemporaryRedirect)
}

// writeAuthError はサービス層のエラーをHTTPレスポンスに変換する。
// APIErrorはカテゴリに応じたステータスで、それ以外は500で返す。
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error, authStatus int) {
	if apiErr, ok := err.(*model.APIError); ok {
		status := authStatus
		if apiErr.Category == "validation" {
			status = http.StatusBadRequest
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}
	slog.Error("auth request failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// setSessionCookie はHMAC署名付きのセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    auth.EncodeSessionCookie(h.config.SessionSecret, sessionID),
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieをクリアする。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectPathFor はユーザー区分に応じたリダイレクト先を返す。
func redirectPathFor(userType model.UserType) string {
	switch userType {
	case model.UserTypeChild:
		return "/child"
	case model.UserTypeGuardian:
		return "/guardian"
	default:
		return "/home"
	}
}

// hasCredentials はリクエストに何らかの認証情報が含まれるかを返す。
func hasCredentials(r *http.Request) bool {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		return true
	}
	return auth.BearerToken(r) != ""
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
