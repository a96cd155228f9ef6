// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/hanasu/internal/model"
)

// UserRepository はユーザーデータ（Credential Store）の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Upsert はIDをキーにユーザーを作成または更新する。
	// OIDCコールバックと開発モードのモックログインで使用する。
	Upsert(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// UpdateTokens はセッションのトークンフィールド（クレーム、アクセストークン、
	// リフレッシュトークン、有効期限）を更新する。認証ゲートのリフレッシュで使用する。
	UpdateTokens(ctx context.Context, session *model.Session) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ChatRepository はチャットセッション・メッセージの永続化インターフェース。
type ChatRepository interface {
	// CreateSession はチャットセッションを作成する。
	CreateSession(ctx context.Context, session *model.ChatSession) error

	// FindSessionByID は指定IDのチャットセッションを取得する。見つからない場合はnilを返す。
	FindSessionByID(ctx context.Context, id string) (*model.ChatSession, error)

	// AppendMessage はセッションにメッセージを追記する。
	AppendMessage(ctx context.Context, message *model.ChatMessage) error

	// ListMessagesBySession はセッションのメッセージ一覧を作成日時昇順で返す。
	ListMessagesBySession(ctx context.Context, sessionID string) ([]*model.ChatMessage, error)
}

// SpeechRepository は発話練習データの永続化インターフェース。
type SpeechRepository interface {
	// CreateSession は発話練習セッションを作成する。
	CreateSession(ctx context.Context, session *model.SpeechSession) error

	// FindSessionByID は指定IDの発話練習セッションを取得する。見つからない場合はnilを返す。
	FindSessionByID(ctx context.Context, id string) (*model.SpeechSession, error)

	// CreateRecording は録音レコードを作成する。
	CreateRecording(ctx context.Context, recording *model.SpeechRecording) error

	// CreateAssessment は評価レコードを作成する。
	CreateAssessment(ctx context.Context, assessment *model.SpeechAssessment) error

	// ProgressByUserID はユーザーの練習進捗の集計を返す。
	// 練習履歴がない場合はゼロ値のSpeechProgressを返す。
	ProgressByUserID(ctx context.Context, userID string) (*model.SpeechProgress, error)
}
