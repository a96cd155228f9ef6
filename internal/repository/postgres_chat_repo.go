package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hanasu/internal/model"
)

// PostgresChatRepo はPostgreSQLを使用したチャットリポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// CreateSession はチャットセッションを作成する。
func (r *PostgresChatRepo) CreateSession(ctx context.Context, session *model.ChatSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.Title, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

// FindSessionByID は指定IDのチャットセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindSessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	session := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at
		 FROM chat_sessions
		 WHERE id = $1`,
		id,
	).Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}

	return session, nil
}

// AppendMessage はセッションにメッセージを追記する。
func (r *PostgresChatRepo) AppendMessage(ctx context.Context, message *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, emotion, support_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		message.ID, message.SessionID, message.Role, message.Content,
		message.Emotion, message.SupportType, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// ListMessagesBySession はセッションのメッセージ一覧を作成日時昇順で返す。
func (r *PostgresChatRepo) ListMessagesBySession(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, emotion, support_type, created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Emotion, &m.SupportType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	return messages, nil
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
