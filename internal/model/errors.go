// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, speech, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeChatSessionMissing   = "CHAT_SESSION_NOT_FOUND"
	ErrCodeSpeechSessionMissing = "SPEECH_SESSION_NOT_FOUND"
	ErrCodeEmotionAPIFailed     = "EMOTION_API_FAILED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("認証されていません: %s", reason),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたは認証情報が正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("必須項目が不足しています: %s", field),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewChatSessionNotFoundError はチャットセッション未検出エラーを生成する。
func NewChatSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeChatSessionMissing,
		Message:  fmt.Sprintf("指定されたチャットセッションが見つかりません: %s", sessionID),
		Category: "chat",
		Action:   "セッションIDを確認してください。",
	}
}

// NewSpeechSessionNotFoundError は発話練習セッション未検出エラーを生成する。
func NewSpeechSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSpeechSessionMissing,
		Message:  fmt.Sprintf("指定された練習セッションが見つかりません: %s", sessionID),
		Category: "speech",
		Action:   "セッションIDを確認してください。",
	}
}

// NewEmotionAPIError は感情分析API失敗エラーを生成する。
// 詳細はログにのみ記録し、利用者には一般的なメッセージを返す。
func NewEmotionAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeEmotionAPIFailed,
		Message:  "AIアシスタントの応答生成に失敗しました。",
		Category: "chat",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
