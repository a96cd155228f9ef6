package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/hanasu/internal/model"
)

// --- モック定義 ---

type mockChatRepo struct {
	createSessionFn  func(ctx context.Context, session *model.ChatSession) error
	findSessionFn    func(ctx context.Context, id string) (*model.ChatSession, error)
	appendMessageFn  func(ctx context.Context, message *model.ChatMessage) error
	listMessagesFn   func(ctx context.Context, sessionID string) ([]*model.ChatMessage, error)
	appendedMessages []*model.ChatMessage
}

func (m *mockChatRepo) CreateSession(ctx context.Context, session *model.ChatSession) error {
	if m.createSessionFn != nil {
		return m.createSessionFn(ctx, session)
	}
	return nil
}

func (m *mockChatRepo) FindSessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	if m.findSessionFn != nil {
		return m.findSessionFn(ctx, id)
	}
	return nil, nil
}

func (m *mockChatRepo) AppendMessage(ctx context.Context, message *model.ChatMessage) error {
	m.appendedMessages = append(m.appendedMessages, message)
	if m.appendMessageFn != nil {
		return m.appendMessageFn(ctx, message)
	}
	return nil
}

func (m *mockChatRepo) ListMessagesBySession(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	if m.listMessagesFn != nil {
		return m.listMessagesFn(ctx, sessionID)
	}
	return nil, nil
}

type mockAnalyzer struct {
	analyzeFn func(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, userType, content)
	}
	return &model.EmotionResult{Response: "応答", Emotion: "neutral", SupportType: "listening"}, nil
}

// ownedSessionRepo はuser-1所有のsess-1を返すリポジトリを生成する。
func ownedSessionRepo() *mockChatRepo {
	return &mockChatRepo{
		findSessionFn: func(ctx context.Context, id string) (*model.ChatSession, error) {
			if id == "sess-1" {
				return &model.ChatSession{ID: "sess-1", UserID: "user-1"}, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestService_CreateSession_SanitizesTitle(t *testing.T) {
	var created *model.ChatSession
	repo := &mockChatRepo{
		createSessionFn: func(ctx context.Context, session *model.ChatSession) error {
			created = session
			return nil
		},
	}
	svc := NewService(repo, &mockAnalyzer{})

	session, err := svc.CreateSession(context.Background(), "user-1", `今日の気持ち<script>alert(1)</script>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID == "" {
		t.Error("expected generated session ID")
	}
	if created == nil {
		t.Fatal("session was not persisted")
	}
	if created.Title != "今日の気持ち" {
		t.Errorf("Title = %q, want sanitized plain text", created.Title)
	}
}

func TestService_SendMessage_PersistsBothMessages(t *testing.T) {
	repo := ownedSessionRepo()
	analyzer := &mockAnalyzer{
		analyzeFn: func(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
			if userType != model.UserTypeChild {
				t.Errorf("userType = %q, want child", userType)
			}
			return &model.EmotionResult{
				Response:    "だいじょうぶだよ",
				Emotion:     "sad",
				SupportType: "encouragement",
			}, nil
		},
	}
	svc := NewService(repo, analyzer)

	user := &model.User{ID: "user-1", UserType: model.UserTypeChild}
	reply, err := svc.SendMessage(context.Background(), user, "sess-1", "きょうかなしかった")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 利用者メッセージとアシスタントメッセージの両方が追記される
	if len(repo.appendedMessages) != 2 {
		t.Fatalf("appended messages = %d, want 2", len(repo.appendedMessages))
	}
	userMsg, assistantMsg := repo.appendedMessages[0], repo.appendedMessages[1]
	if userMsg.Role != model.MessageRoleUser {
		t.Errorf("first message role = %q, want user", userMsg.Role)
	}
	if userMsg.Content != "きょうかなしかった" {
		t.Errorf("user content = %q", userMsg.Content)
	}
	if assistantMsg.Role != model.MessageRoleAssistant {
		t.Errorf("second message role = %q, want assistant", assistantMsg.Role)
	}
	if assistantMsg.Emotion != "sad" || assistantMsg.SupportType != "encouragement" {
		t.Errorf("assistant emotion/supportType = %q/%q", assistantMsg.Emotion, assistantMsg.SupportType)
	}

	if reply.ID != assistantMsg.ID {
		t.Error("returned message should be the assistant message")
	}
}

func TestService_SendMessage_EmptyContent(t *testing.T) {
	svc := NewService(ownedSessionRepo(), &mockAnalyzer{})

	_, err := svc.SendMessage(context.Background(), &model.User{ID: "user-1"}, "sess-1", "")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("Code = %q, want VALIDATION_FAILED", apiErr.Code)
	}
}

func TestService_SendMessage_OtherUsersSession(t *testing.T) {
	svc := NewService(ownedSessionRepo(), &mockAnalyzer{})

	// 他ユーザーのセッションは存在しないものとして扱う
	_, err := svc.SendMessage(context.Background(), &model.User{ID: "user-2"}, "sess-1", "こんにちは")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeChatSessionMissing {
		t.Errorf("Code = %q, want CHAT_SESSION_NOT_FOUND", apiErr.Code)
	}
}

func TestService_SendMessage_AnalysisFailure(t *testing.T) {
	repo := ownedSessionRepo()
	analyzer := &mockAnalyzer{
		analyzeFn: func(ctx context.Context, userType model.UserType, content string) (*model.EmotionResult, error) {
			return nil, errors.New("api unavailable")
		},
	}
	svc := NewService(repo, analyzer)

	_, err := svc.SendMessage(context.Background(), &model.User{ID: "user-1"}, "sess-1", "つらい")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEmotionAPIFailed {
		t.Errorf("Code = %q, want EMOTION_API_FAILED", apiErr.Code)
	}

	// 利用者メッセージは分析前に永続化済み
	if len(repo.appendedMessages) != 1 {
		t.Errorf("appended messages = %d, want 1 (user message only)", len(repo.appendedMessages))
	}
}

func TestService_SendMessage_SanitizesContent(t *testing.T) {
	repo := ownedSessionRepo()
	svc := NewService(repo, &mockAnalyzer{})

	_, err := svc.SendMessage(context.Background(), &model.User{ID: "user-1"}, "sess-1",
		`こんにちは<img src=x onerror=alert(1)>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.appendedMessages[0].Content; got != "こんにちは" {
		t.Errorf("persisted content = %q, want sanitized plain text", got)
	}
}

func TestService_ListMessages_OwnershipCheck(t *testing.T) {
	repo := ownedSessionRepo()
	repo.listMessagesFn = func(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
		return []*model.ChatMessage{
			{ID: "m1", SessionID: sessionID, Role: model.MessageRoleUser},
		}, nil
	}
	svc := NewService(repo, &mockAnalyzer{})

	messages, err := svc.ListMessages(context.Background(), "user-1", "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("messages = %d, want 1", len(messages))
	}

	if _, err := svc.ListMessages(context.Background(), "user-2", "sess-1"); err == nil {
		t.Error("expected error for other user's session")
	}
}
