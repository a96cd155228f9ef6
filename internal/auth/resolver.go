// Package auth は認証フロー、セッション管理、トークン解決を提供する。
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/hanasu/internal/model"
	"github.com/hitoshi/hanasu/internal/repository"
)

// SessionCookieName はセッションIDを保持するCookie名。
const SessionCookieName = "session_id"

// Resolver はHTTPリクエストまたはWebSocketハンドシェイクから
// 呼び出し元のIdentityを解決する。
// 優先順位: 確立済みセッション → ベアラートークン。
// ベアラートークンの値はユーザーIDとしてCredential Storeを参照する。
type Resolver struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	cookieSecret string
}

// NewResolver はResolverを生成する。
// cookieSecretはセッションCookieのHMAC署名検証に使用する。
func NewResolver(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, cookieSecret string) *Resolver {
	return &Resolver{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		cookieSecret: cookieSecret,
	}
}

// ResolveHTTP はHTTPリクエストからIdentityを解決する。
// セッションCookieのIdentityを優先し、なければベアラートークンを参照する。
// どちらでも解決できない場合は (nil, nil, nil) を返す（エラーではない）。
// 解決に使用したセッションがあれば併せて返す（ベアラー解決時はnil）。
func (r *Resolver) ResolveHTTP(ctx context.Context, req *http.Request) (*model.User, *model.Session, error) {
	// 1. セッションCookieを優先（署名不正のCookieはセッションなしとして扱う）
	if cookie, err := req.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if sessionID, ok := DecodeSessionCookie(r.cookieSecret, cookie.Value); ok {
			session, err := r.sessionRepo.FindByID(ctx, sessionID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to find session: %w", err)
			}
			if session != nil {
				user, err := r.userRepo.FindByID(ctx, session.UserID)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to find session user: %w", err)
				}
				if user != nil {
					return user, session, nil
				}
			}
		}
	}

	// 2. ベアラートークン（ヘッダーまたはクエリ文字列）
	token := BearerToken(req)
	if token == "" {
		return nil, nil, nil
	}
	user, err := r.ResolveToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	return user, nil, nil
}

// ResolveToken はトークン値をユーザーIDとしてCredential Storeを参照する。
// 未知のIDは未解決（nil, nil）であり、エラーではない。
func (r *Resolver) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	user, err := r.userRepo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	return user, nil
}

// BearerToken はリクエストからベアラー形式のトークンを取り出す。
// Authorizationヘッダーの"Bearer "接頭辞を除去した値、
// なければクエリ文字列のtokenパラメータを返す。
func BearerToken(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return req.URL.Query().Get("token")
}

// HandshakeToken はWebSocketハンドシェイクからトークンを取り出す。
// HTTPルートと異なり、クエリ文字列のtokenパラメータを優先し、
// なければAuthorizationヘッダーの"Bearer "接頭辞を除去した値を返す。
func HandshakeToken(req *http.Request) string {
	if t := req.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := req.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
