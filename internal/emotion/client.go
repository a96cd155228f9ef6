// Package emotion は感情分析・応答生成コラボレーターへのクライアントを提供する。
package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/hanasu/internal/model"
)

// Analyzer は感情分析コラボレーターのインターフェース。
// WebSocketハンドラーとRESTハンドラーの両方から使用する。
type Analyzer interface {
	// Analyze は発話内容を分析し、応答・感情・サポート種別を返す。
	Analyze(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error)
}

// ClientConfig は感情分析クライアントの設定。
type ClientConfig struct {
	APIKey string
	Model  string

	// テスト用にオーバーライド可能なAPIベースURL
	BaseURL string
}

// Client はOpenAI互換の補完APIを使用した感情分析クライアント。
type Client struct {
	client *openai.Client
	model  string
}

// NewClient はClientを生成する。
func NewClient(config ClientConfig) *Client {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}
}

// analysisResponse は補完APIに要求するJSONレスポンスの形。
type analysisResponse struct {
	Response    string `json:"response"`
	Emotion     string `json:"emotion"`
	SupportType string `json:"supportType"`
}

// Analyze は発話内容を分析し、応答・感情・サポート種別を返す。
// タイムアウトはこの層では設定しない。呼び出し元のctxに従う。
func (c *Client) Analyze(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(userType)},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion API returned no choices")
	}

	raw := resp.Choices[0].Message.Content

	parsed := analysisResponse{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Response == "" {
		// モデルがJSONを返さなかった場合は本文をそのまま応答として使う
		slog.Warn("completion API returned non-JSON content, using fallback classification")
		return &model.EmotionResult{
			Response:    strings.TrimSpace(raw),
			Emotion:     "neutral",
			SupportType: "listening",
		}, nil
	}

	return &model.EmotionResult{
		Response:    parsed.Response,
		Emotion:     parsed.Emotion,
		SupportType: parsed.SupportType,
	}, nil
}

// systemPrompt は利用者区分に応じたシステムプロンプトを返す。
// 子どもにはやさしい言葉づかいで短く応答するよう指示する。
func systemPrompt(userType model.UserType) string {
	base := `あなたは言語療法と情緒面のサポートを行うアシスタントです。
利用者の発話に共感的に応答してください。
必ず次のJSON形式のみで応答してください:
{"response": "利用者への応答", "emotion": "検出した感情（happy/sad/anxious/angry/neutral）", "supportType": "サポート種別（encouragement/listening/guidance/celebration）"}`

	if userType == model.UserTypeChild {
		return base + "\nひらがなを多めに、やさしい言葉で短く応答してください。"
	}
	return base
}

// compile-time interface check
var _ Analyzer = (*Client)(nil)
