package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hanasu/internal/model"
)

// PostgresSpeechRepo はPostgreSQLを使用した発話練習リポジトリ。
type PostgresSpeechRepo struct {
	db *sql.DB
}

// NewPostgresSpeechRepo はPostgresSpeechRepoを生成する。
func NewPostgresSpeechRepo(db *sql.DB) *PostgresSpeechRepo {
	return &PostgresSpeechRepo{db: db}
}

// CreateSession は発話練習セッションを作成する。
func (r *PostgresSpeechRepo) CreateSession(ctx context.Context, session *model.SpeechSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO speech_sessions (id, user_id, exercise, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.Exercise, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create speech session: %w", err)
	}
	return nil
}

// FindSessionByID は指定IDの発話練習セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSpeechRepo) FindSessionByID(ctx context.Context, id string) (*model.SpeechSession, error) {
	session := &model.SpeechSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, exercise, created_at
		 FROM speech_sessions
		 WHERE id = $1`,
		id,
	).Scan(&session.ID, &session.UserID, &session.Exercise, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find speech session: %w", err)
	}

	return session, nil
}

// CreateRecording は録音レコードを作成する。
func (r *PostgresSpeechRepo) CreateRecording(ctx context.Context, recording *model.SpeechRecording) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO speech_recordings (id, session_id, transcript, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		recording.ID, recording.SessionID, recording.Transcript, recording.DurationMS, recording.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create speech recording: %w", err)
	}
	return nil
}

// CreateAssessment は評価レコードを作成する。
func (r *PostgresSpeechRepo) CreateAssessment(ctx context.Context, assessment *model.SpeechAssessment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO speech_assessments (id, session_id, score, clarity, pace, feedback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		assessment.ID, assessment.SessionID, assessment.Score, assessment.Clarity,
		assessment.Pace, assessment.Feedback, assessment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create speech assessment: %w", err)
	}
	return nil
}

// ProgressByUserID はユーザーの練習進捗の集計を返す。
// 練習履歴がない場合はゼロ値のSpeechProgressを返す。
func (r *PostgresSpeechRepo) ProgressByUserID(ctx context.Context, userID string) (*model.SpeechProgress, error) {
	progress := &model.SpeechProgress{UserID: userID}

	var avgScore sql.NullFloat64
	var latestScore sql.NullInt64
	var lastPracticed sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(DISTINCT s.id),
		   AVG(a.score),
		   (SELECT a2.score FROM speech_assessments a2
		      JOIN speech_sessions s2 ON s2.id = a2.session_id
		      WHERE s2.user_id = $1
		      ORDER BY a2.created_at DESC LIMIT 1),
		   MAX(s.created_at)
		 FROM speech_sessions s
		 LEFT JOIN speech_assessments a ON a.session_id = s.id
		 WHERE s.user_id = $1`,
		userID,
	).Scan(&progress.SessionCount, &avgScore, &latestScore, &lastPracticed)

	if err != nil {
		return nil, fmt.Errorf("failed to aggregate speech progress: %w", err)
	}

	if avgScore.Valid {
		progress.AverageScore = avgScore.Float64
	}
	if latestScore.Valid {
		progress.LatestScore = int(latestScore.Int64)
	}
	if lastPracticed.Valid {
		progress.LastPracticed = lastPracticed.Time
	}

	return progress, nil
}

// compile-time interface check
var _ SpeechRepository = (*PostgresSpeechRepo)(nil)
