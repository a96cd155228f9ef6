// Package ws はリアルタイムチャネル（WebSocket）の接続管理とメッセージ処理を提供する。
package ws

import "encoding/json"

// 受信メッセージ種別
const (
	TypeAuth           = "auth"
	TypeSpeechPractice = "speech_practice"
	TypeChatMessage    = "chat_message"
)

// 送信メッセージ種別
const (
	TypeAuthSuccess    = "auth_success"
	TypeAuthError      = "auth_error"
	TypeSpeechFeedback = "speech_feedback"
	TypeAIResponse     = "ai_response"
	TypeError          = "error"
)

// InboundMessage はクライアントからの受信フレーム。
// typeタグで判別するユニオンであり、payloadの形はtypeに依存する。
type InboundMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Content string          `json:"content,omitempty"`
}

// OutboundMessage はクライアントへの送信フレーム。
type OutboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// AuthData はauthメッセージのpayload。
type AuthData struct {
	Token string `json:"token"`
}

// NewAuthSuccess は認証成功の応答フレームを生成する。
func NewAuthSuccess(userID string) OutboundMessage {
	return OutboundMessage{
		Type: TypeAuthSuccess,
		Data: map[string]string{"userId": userID},
	}
}

// NewAuthError は認証失敗の応答フレームを生成する。接続は閉じない。
func NewAuthError(reason string) OutboundMessage {
	return OutboundMessage{
		Type: TypeAuthError,
		Data: map[string]string{"message": reason},
	}
}

// NewSpeechFeedback は発話練習の受付応答フレームを生成する。
func NewSpeechFeedback() OutboundMessage {
	return OutboundMessage{
		Type: TypeSpeechFeedback,
		Data: map[string]string{"status": "processing"},
	}
}

// NewGenericError は処理エラーの汎用応答フレームを生成する。
// 詳細はログにのみ記録し、クライアントには一般的なメッセージを返す。
func NewGenericError() OutboundMessage {
	return OutboundMessage{
		Type: TypeError,
		Data: map[string]string{"message": "メッセージの処理に失敗しました。"},
	}
}
