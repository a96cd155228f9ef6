// Package model はドメインモデルを定義する。
package model

import "time"

// UserType は利用者区分を表す。
type UserType string

const (
	// UserTypeAdult は成人の利用者。
	UserTypeAdult UserType = "adult"
	// UserTypeChild は子どもの利用者。
	UserTypeChild UserType = "child"
	// UserTypeGuardian は保護者の利用者。
	UserTypeGuardian UserType = "guardian"
)

// IsValid はUserTypeが定義済みの値かどうかを返す。
func (t UserType) IsValid() bool {
	switch t {
	case UserTypeAdult, UserTypeChild, UserTypeGuardian:
		return true
	}
	return false
}

// User はサービス利用ユーザーを表す。
// 認証済みリクエストに対して解決されるIdentityそのもの。
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	UserType  UserType `json:"userType"`
	Language  string   `json:"language"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionClaims はセッションに保持するIDプロバイダー由来のクレーム。
type SessionClaims struct {
	Sub string `json:"sub"`
}

// Session はユーザーのログインセッションを表す。
// 本番モードではOIDCのトークン一式と有効期限（エポック秒）を併せて保持し、
// 認証ゲートのリフレッシュ判定に使用する。
type Session struct {
	ID     string
	UserID string
	Claims SessionClaims

	// OIDCトークン（開発モードでは空）
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt int64 // アクセストークンの有効期限（エポック秒）。0は期限なし。

	ExpiresAt time.Time // セッション自体の有効期限
	CreatedAt time.Time
}

// TokenExpired はアクセストークンが期限切れかどうかを返す。
// TokenExpiresAtが0の場合（開発モード等）は期限切れとみなさない。
func (s *Session) TokenExpired(now time.Time) bool {
	if s.TokenExpiresAt == 0 {
		return false
	}
	return now.Unix() > s.TokenExpiresAt
}
