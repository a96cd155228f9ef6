package emotion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/hanasu/internal/model"
)

// newCompletionServer は補完APIを模倣するテストサーバーを起動する。
// respondWithは /chat/completions のレスポンス本文（choices[0].message.content）。
func newCompletionServer(t *testing.T, respondWith string, capture *string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			*capture = string(body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role":    "assistant",
						"content": respondWith,
					},
					"finish_reason": "stop",
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_Analyze_ParsesJSONResponse(t *testing.T) {
	server := newCompletionServer(t,
		`{"response": "つらかったね。話してくれてありがとう。", "emotion": "sad", "supportType": "listening"}`, nil)

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	result, err := client.Analyze(context.Background(), model.UserTypeAdult, "今日はつらい一日でした")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response != "つらかったね。話してくれてありがとう。" {
		t.Errorf("Response = %q", result.Response)
	}
	if result.Emotion != "sad" {
		t.Errorf("Emotion = %q, want sad", result.Emotion)
	}
	if result.SupportType != "listening" {
		t.Errorf("SupportType = %q, want listening", result.SupportType)
	}
}

func TestClient_Analyze_NonJSONFallsBackToNeutral(t *testing.T) {
	server := newCompletionServer(t, "がんばりましたね。", nil)

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	result, err := client.Analyze(context.Background(), model.UserTypeAdult, "発表がうまくいきました")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// JSONでない応答は本文をそのまま使い、neutral/listeningに分類する
	if result.Response != "がんばりましたね。" {
		t.Errorf("Response = %q", result.Response)
	}
	if result.Emotion != "neutral" || result.SupportType != "listening" {
		t.Errorf("fallback classification = %q/%q, want neutral/listening", result.Emotion, result.SupportType)
	}
}

func TestClient_Analyze_ChildPromptUsesSimpleLanguage(t *testing.T) {
	var captured string
	server := newCompletionServer(t,
		`{"response": "すごいね！", "emotion": "happy", "supportType": "celebration"}`, &captured)

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	if _, err := client.Analyze(context.Background(), model.UserTypeChild, "きょうじょうずにいえたよ"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 子ども向けにはひらがな多めの指示がシステムプロンプトに入る
	if !strings.Contains(captured, "ひらがな") {
		t.Error("system prompt for child should instruct simple language")
	}
}

func TestClient_Analyze_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	if _, err := client.Analyze(context.Background(), model.UserTypeAdult, "こんにちは"); err == nil {
		t.Fatal("expected error")
	}
}
