package model

import "time"

// MessageRole はチャットメッセージの発話者区分を表す。
type MessageRole string

const (
	// MessageRoleUser は利用者の発話。
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant はAIアシスタントの応答。
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatSession は感情サポートチャットの1セッションを表す。
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage はチャットセッション内の1メッセージを表す。
// アシスタント応答には感情分析の結果（Emotion, SupportType）が付与される。
type ChatMessage struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Role        MessageRole `json:"role"`
	Content     string      `json:"content"`
	Emotion     string      `json:"emotion,omitempty"`
	SupportType string      `json:"supportType,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// EmotionResult は感情分析コラボレーターからの応答を表す。
type EmotionResult struct {
	Response    string `json:"response"`
	Emotion     string `json:"emotion"`
	SupportType string `json:"supportType"`
}
