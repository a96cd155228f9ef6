package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/hanasu/internal/model"
)

// MemoryStore はDATABASE_URL未設定の開発モードで使用するインメモリ実装。
// 全リポジトリインターフェースを1つのストアで提供する。
// プロセス再起動でデータは失われる。
type MemoryStore struct {
	mu sync.RWMutex

	users    map[string]*model.User
	sessions map[string]*model.Session

	chatSessions map[string]*model.ChatSession
	chatMessages map[string][]*model.ChatMessage // session_id -> messages

	speechSessions    map[string]*model.SpeechSession
	speechRecordings  map[string][]*model.SpeechRecording  // session_id -> recordings
	speechAssessments map[string][]*model.SpeechAssessment // session_id -> assessments
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:             make(map[string]*model.User),
		sessions:          make(map[string]*model.Session),
		chatSessions:      make(map[string]*model.ChatSession),
		chatMessages:      make(map[string][]*model.ChatMessage),
		speechSessions:    make(map[string]*model.SpeechSession),
		speechRecordings:  make(map[string][]*model.SpeechRecording),
		speechAssessments: make(map[string][]*model.SpeechAssessment),
	}
}

// --- UserRepository ---

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u := *user
	return &u, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, nil
}

// Create はユーザーを作成する。
func (s *MemoryStore) Create(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[user.ID] = &u
	return nil
}

// Upsert はIDをキーにユーザーを作成または更新する。
func (s *MemoryStore) Upsert(ctx context.Context, user *model.User) error {
	return s.Create(ctx, user)
}

// --- SessionRepository ---

// MemorySessionRepo はMemoryStoreに紐づくセッションリポジトリ。
// UserRepositoryとメソッド名が重なるため専用のビュー型に分離している。
type MemorySessionRepo struct {
	store *MemoryStore
}

// SessionRepo はセッションリポジトリのビューを返す。
func (s *MemoryStore) SessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{store: s}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sess := *session
	r.store.sessions[session.ID] = &sess
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	session, ok := r.store.sessions[id]
	if !ok {
		return nil, nil
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil
	}
	sess := *session
	return &sess, nil
}

// UpdateTokens はセッションのトークンフィールドを更新する。
func (r *MemorySessionRepo) UpdateTokens(ctx context.Context, session *model.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.sessions[session.ID]
	if !ok {
		return nil
	}
	existing.Claims = session.Claims
	existing.AccessToken = session.AccessToken
	existing.RefreshToken = session.RefreshToken
	existing.TokenExpiresAt = session.TokenExpiresAt
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sessions, id)
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *MemorySessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, session := range r.store.sessions {
		if session.UserID == userID {
			delete(r.store.sessions, id)
		}
	}
	return nil
}

// --- ChatRepository ---

// MemoryChatRepo はMemoryStoreに紐づくチャットリポジトリ。
type MemoryChatRepo struct {
	store *MemoryStore
}

// ChatRepo はチャットリポジトリのビューを返す。
func (s *MemoryStore) ChatRepo() *MemoryChatRepo {
	return &MemoryChatRepo{store: s}
}

// CreateSession はチャットセッションを作成する。
func (r *MemoryChatRepo) CreateSession(ctx context.Context, session *model.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sess := *session
	r.store.chatSessions[session.ID] = &sess
	return nil
}

// FindSessionByID は指定IDのチャットセッションを取得する。見つからない場合はnilを返す。
func (r *MemoryChatRepo) FindSessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	session, ok := r.store.chatSessions[id]
	if !ok {
		return nil, nil
	}
	sess := *session
	return &sess, nil
}

// AppendMessage はセッションにメッセージを追記する。
func (r *MemoryChatRepo) AppendMessage(ctx context.Context, message *model.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m := *message
	r.store.chatMessages[message.SessionID] = append(r.store.chatMessages[message.SessionID], &m)
	return nil
}

// ListMessagesBySession はセッションのメッセージ一覧を作成日時昇順で返す。
func (r *MemoryChatRepo) ListMessagesBySession(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stored := r.store.chatMessages[sessionID]
	messages := make([]*model.ChatMessage, len(stored))
	for i, m := range stored {
		msg := *m
		messages[i] = &msg
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// --- SpeechRepository ---

// MemorySpeechRepo はMemoryStoreに紐づく発話練習リポジトリ。
type MemorySpeechRepo struct {
	store *MemoryStore
}

// SpeechRepo は発話練習リポジトリのビューを返す。
func (s *MemoryStore) SpeechRepo() *MemorySpeechRepo {
	return &MemorySpeechRepo{store: s}
}

// CreateSession は発話練習セッションを作成する。
func (r *MemorySpeechRepo) CreateSession(ctx context.Context, session *model.SpeechSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sess := *session
	r.store.speechSessions[session.ID] = &sess
	return nil
}

// FindSessionByID は指定IDの発話練習セッションを取得する。見つからない場合はnilを返す。
func (r *MemorySpeechRepo) FindSessionByID(ctx context.Context, id string) (*model.SpeechSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	session, ok := r.store.speechSessions[id]
	if !ok {
		return nil, nil
	}
	sess := *session
	return &sess, nil
}

// CreateRecording は録音レコードを作成する。
func (r *MemorySpeechRepo) CreateRecording(ctx context.Context, recording *model.SpeechRecording) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec := *recording
	r.store.speechRecordings[recording.SessionID] = append(r.store.speechRecordings[recording.SessionID], &rec)
	return nil
}

// CreateAssessment は評価レコードを作成する。
func (r *MemorySpeechRepo) CreateAssessment(ctx context.Context, assessment *model.SpeechAssessment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a := *assessment
	r.store.speechAssessments[assessment.SessionID] = append(r.store.speechAssessments[assessment.SessionID], &a)
	return nil
}

// ProgressByUserID はユーザーの練習進捗の集計を返す。
func (r *MemorySpeechRepo) ProgressByUserID(ctx context.Context, userID string) (*model.SpeechProgress, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	progress := &model.SpeechProgress{UserID: userID}

	var scoreSum int
	var scoreCount int
	var latest *model.SpeechAssessment

	for _, session := range r.store.speechSessions {
		if session.UserID != userID {
			continue
		}
		progress.SessionCount++
		if session.CreatedAt.After(progress.LastPracticed) {
			progress.LastPracticed = session.CreatedAt
		}
		for _, a := range r.store.speechAssessments[session.ID] {
			scoreSum += a.Score
			scoreCount++
			if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
				latest = a
			}
		}
	}

	if scoreCount > 0 {
		progress.AverageScore = float64(scoreSum) / float64(scoreCount)
	}
	if latest != nil {
		progress.LatestScore = latest.Score
	}

	return progress, nil
}

// compile-time interface checks
var (
	_ UserRepository    = (*MemoryStore)(nil)
	_ SessionRepository = (*MemorySessionRepo)(nil)
	_ ChatRepository    = (*MemoryChatRepo)(nil)
	_ SpeechRepository  = (*MemorySpeechRepo)(nil)
)
