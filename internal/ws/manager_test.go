package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hanasu/internal/auth"
	"github.com/hitoshi/hanasu/internal/metrics"
	"github.com/hitoshi/hanasu/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (m *mockUserRepo) Upsert(ctx context.Context, user *model.User) error { return nil }

type mockSessionRepo struct{}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error { return nil }

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) UpdateTokens(ctx context.Context, session *model.Session) error {
	return nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error { return nil }

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error { return nil }

type mockAnalyzer struct {
	analyzeFn func(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, userType, content)
	}
	return &model.EmotionResult{Response: "応答", Emotion: "neutral", SupportType: "listening"}, nil
}

// --- テストヘルパー ---

// knownUsersRepo はID一覧に含まれるユーザーのみ解決するリポジトリを返す。
func knownUsersRepo(ids ...string) *mockUserRepo {
	known := map[string]model.UserType{}
	for _, id := range ids {
		known[id] = model.UserTypeAdult
	}
	return &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if userType, ok := known[id]; ok {
				return &model.User{ID: id, UserType: userType}, nil
			}
			return nil, nil
		},
	}
}

// newTestManager はテスト用のManagerとサーバーを起動し、ws:// のURLを返す。
func newTestManager(t *testing.T, userRepo *mockUserRepo, analyzer *mockAnalyzer) string {
	t.Helper()

	resolver := auth.NewResolver(userRepo, &mockSessionRepo{}, "")
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m := NewManager(resolver, analyzer, collector, "")

	server := httptest.NewServer(m.Handler())
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// dial はWebSocket接続を確立する。
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame は次の1フレームを読み取ってOutboundMessage形式にデコードする。
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	frame := map[string]any{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("invalid frame JSON: %v", err)
	}
	return frame
}

// sendJSON は任意の値をJSONフレームとして送信する。
func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}
}

// --- テスト ---

func TestManager_HandshakeWithValidToken_Authenticates(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url+"?token=user-1")

	// 認証済み状態でチャットフレームが処理される
	sendJSON(t, conn, map[string]string{"type": "chat_message", "content": "こんにちは"})

	frame := readFrame(t, conn)
	if frame["type"] != TypeAIResponse {
		t.Errorf("type = %v, want ai_response", frame["type"])
	}
}

func TestManager_HandshakeWithInvalidToken_ClosesWith1008(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url+"?token=unknown-user")

	// フレーム処理に入らず、ポリシー違反コードでクローズされる
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected close, got frame")
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected CloseError, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

func TestManager_NoToken_ConnectionStaysOpen(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url)

	// 未認証のままフレームを送受信できる
	sendJSON(t, conn, map[string]string{"type": "speech_practice"})

	frame := readFrame(t, conn)
	if frame["type"] != TypeSpeechFeedback {
		t.Errorf("type = %v, want speech_feedback", frame["type"])
	}
}

func TestManager_InBandAuth_Success(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url)

	sendJSON(t, conn, map[string]any{
		"type": "auth",
		"data": map[string]string{"token": "user-1"},
	})

	// auth_successがちょうど1回返り、data.userIdを含む
	frame := readFrame(t, conn)
	if frame["type"] != TypeAuthSuccess {
		t.Fatalf("type = %v, want auth_success", frame["type"])
	}
	data, ok := frame["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v, want object", frame["data"])
	}
	if data["userId"] != "user-1" {
		t.Errorf("data.userId = %v, want user-1", data["userId"])
	}

	// 後続フレームも通常どおり処理される（authフレームで終端しないことの確認）
	sendJSON(t, conn, map[string]string{"type": "speech_practice"})
	frame = readFrame(t, conn)
	if frame["type"] != TypeSpeechFeedback {
		t.Errorf("type = %v, want speech_feedback", frame["type"])
	}
}

func TestManager_InBandAuth_InvalidToken_StaysOpen(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url)

	sendJSON(t, conn, map[string]any{
		"type": "auth",
		"data": map[string]string{"token": "unknown-user"},
	})

	frame := readFrame(t, conn)
	if frame["type"] != TypeAuthError {
		t.Fatalf("type = %v, want auth_error", frame["type"])
	}

	// 認証失敗でも接続は維持される
	sendJSON(t, conn, map[string]string{"type": "speech_practice"})
	frame = readFrame(t, conn)
	if frame["type"] != TypeSpeechFeedback {
		t.Errorf("type = %v, want speech_feedback", frame["type"])
	}
}

func TestManager_MalformedJSON_RespondsWithErrorAndStaysOpen(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	// 汎用エラーフレームが1回返る
	frame := readFrame(t, conn)
	if frame["type"] != TypeError {
		t.Fatalf("type = %v, want error", frame["type"])
	}

	// 以降のフレームは通常どおり処理される
	sendJSON(t, conn, map[string]string{"type": "speech_practice"})
	frame = readFrame(t, conn)
	if frame["type"] != TypeSpeechFeedback {
		t.Errorf("type = %v, want speech_feedback", frame["type"])
	}
}

func TestManager_UnknownMessageType_SilentlyIgnored(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1"), &mockAnalyzer{})

	conn := dial(t, url)

	sendJSON(t, conn, map[string]string{"type": "telemetry"})

	// 未知の種別には応答しない。次の既知フレームへの応答が最初の受信になる
	sendJSON(t, conn, map[string]string{"type": "speech_practice"})
	frame := readFrame(t, conn)
	if frame["type"] != TypeSpeechFeedback {
		t.Errorf("type = %v, want speech_feedback (unknown type should produce no frame)", frame["type"])
	}
}

func TestManager_ReAuth_LastWriterWins(t *testing.T) {
	url := newTestManager(t, knownUsersRepo("user-1", "user-2"), &mockAnalyzer{})

	conn := dial(t, url+"?token=user-1")

	// 別ユーザーのトークンで再認証すると後勝ちで上書きされる
	sendJSON(t, conn, map[string]any{
		"type": "auth",
		"data": map[string]string{"token": "user-2"},
	})

	frame := readFrame(t, conn)
	if frame["type"] != TypeAuthSuccess {
		t.Fatalf("type = %v, want auth_success", frame["type"])
	}
	data := frame["data"].(map[string]any)
	if data["userId"] != "user-2" {
		t.Errorf("data.userId = %v, want user-2", data["userId"])
	}
}

func TestManager_ChatMessage_AnalysisFailure_RespondsWithError(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeFn: func(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
			return nil, errors.New("api unavailable")
		},
	}
	url := newTestManager(t, knownUsersRepo("user-1"), analyzer)

	conn := dial(t, url+"?token=user-1")

	sendJSON(t, conn, map[string]string{"type": "chat_message", "content": "つらい"})

	frame := readFrame(t, conn)
	if frame["type"] != TypeError {
		t.Errorf("type = %v, want error", frame["type"])
	}
}

func TestManager_ChatMessage_PassesUserTypeToAnalyzer(t *testing.T) {
	var gotUserType model.UserType
	analyzer := &mockAnalyzer{
		analyzeFn: func(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
			gotUserType = userType
			return &model.EmotionResult{Response: "だいじょうぶだよ", Emotion: "sad", SupportType: "encouragement"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == "child-1" {
				return &model.User{ID: id, UserType: model.UserTypeChild}, nil
			}
			return nil, nil
		},
	}
	url := newTestManager(t, userRepo, analyzer)

	conn := dial(t, url+"?token=child-1")

	sendJSON(t, conn, map[string]string{"type": "chat_message", "content": "きょうかなしかった"})

	frame := readFrame(t, conn)
	if frame["type"] != TypeAIResponse {
		t.Fatalf("type = %v, want ai_response", frame["type"])
	}
	if gotUserType != model.UserTypeChild {
		t.Errorf("analyzer userType = %q, want child", gotUserType)
	}

	data := frame["data"].(map[string]any)
	if data["emotion"] != "sad" {
		t.Errorf("data.emotion = %v, want sad", data["emotion"])
	}
	if data["supportType"] != "encouragement" {
		t.Errorf("data.supportType = %v, want encouragement", data["supportType"])
	}
}
