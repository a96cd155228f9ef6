// Package speech は発話練習のビジネスロジックを提供する。
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/hanasu/internal/model"
	"github.com/hitoshi/hanasu/internal/repository"
)

// 評価の目安となる発話速度（文字/分）。日本語の朗読のおおよその標準値。
const targetCharsPerMinute = 300

// RecordInput は録音登録の入力。
type RecordInput struct {
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
	DurationMS int    `json:"durationMs"`
}

// Service は発話練習セッション・録音・評価のビジネスロジックを提供する。
type Service struct {
	speechRepo repository.SpeechRepository
}

// NewService はServiceを生成する。
func NewService(speechRepo repository.SpeechRepository) *Service {
	return &Service{speechRepo: speechRepo}
}

// CreateSession は新しい発話練習セッションを作成する。
func (s *Service) CreateSession(ctx context.Context, userID, exercise string) (*model.SpeechSession, error) {
	session := &model.SpeechSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Exercise:  exercise,
		CreatedAt: time.Now(),
	}

	if err := s.speechRepo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create speech session: %w", err)
	}

	slog.Info("speech session created",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
		slog.String("exercise", exercise),
	)
	return session, nil
}

// Record は録音レコードを登録する。
// セッションが存在しないか他ユーザーのものである場合はNotFoundエラーを返す。
func (s *Service) Record(ctx context.Context, userID string, input RecordInput) (*model.SpeechRecording, error) {
	if _, err := s.findOwnedSession(ctx, userID, input.SessionID); err != nil {
		return nil, err
	}

	recording := &model.SpeechRecording{
		ID:         uuid.New().String(),
		SessionID:  input.SessionID,
		Transcript: input.Transcript,
		DurationMS: input.DurationMS,
		CreatedAt:  time.Now(),
	}

	if err := s.speechRepo.CreateRecording(ctx, recording); err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return recording, nil
}

// Assess は文字起こしと発話時間から評価を算出し永続化する。
// スコアリングは決定的なヒューリスティックで、音声解析は行わない。
func (s *Service) Assess(ctx context.Context, userID string, input RecordInput) (*model.SpeechAssessment, error) {
	if _, err := s.findOwnedSession(ctx, userID, input.SessionID); err != nil {
		return nil, err
	}

	clarity := scoreClarity(input.Transcript)
	pace := scorePace(input.Transcript, input.DurationMS)
	score := (clarity + pace) / 2

	assessment := &model.SpeechAssessment{
		ID:        uuid.New().String(),
		SessionID: input.SessionID,
		Score:     score,
		Clarity:   clarity,
		Pace:      pace,
		Feedback:  feedbackFor(score),
		CreatedAt: time.Now(),
	}

	if err := s.speechRepo.CreateAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("failed to create assessment: %w", err)
	}

	slog.Info("speech assessed",
		slog.String("session_id", input.SessionID),
		slog.Int("score", score),
	)
	return assessment, nil
}

// Progress はユーザーの練習進捗の集計を返す。
func (s *Service) Progress(ctx context.Context, userID string) (*model.SpeechProgress, error) {
	progress, err := s.speechRepo.ProgressByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate progress: %w", err)
	}
	return progress, nil
}

// findOwnedSession は指定ユーザーが所有するセッションを取得する。
func (s *Service) findOwnedSession(ctx context.Context, userID, sessionID string) (*model.SpeechSession, error) {
	if sessionID == "" {
		return nil, model.NewValidationError("sessionId")
	}

	session, err := s.speechRepo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find speech session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, model.NewSpeechSessionNotFoundError(sessionID)
	}
	return session, nil
}

// scoreClarity は文字起こしの明瞭さを0〜100で採点する。
// 空の文字起こしは0点。フィラー（「えー」「あのー」等）が多いほど減点する。
func scoreClarity(transcript string) int {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return 0
	}

	fillers := []string{"えー", "あのー", "えっと", "うーん"}
	runes := []rune(transcript)
	fillerCount := 0
	for _, f := range fillers {
		fillerCount += strings.Count(transcript, f)
	}

	score := 100 - fillerCount*10
	if len(runes) < 5 {
		score -= 20 // 発話が短すぎる場合は判定材料不足として減点
	}
	return clampScore(score)
}

// scorePace は発話速度の適切さを0〜100で採点する。
// 目安速度からの乖離に比例して減点する。時間不明（0）は中間点とする。
func scorePace(transcript string, durationMS int) int {
	if durationMS <= 0 {
		return 50
	}
	charCount := len([]rune(strings.TrimSpace(transcript)))
	if charCount == 0 {
		return 0
	}

	charsPerMinute := float64(charCount) / (float64(durationMS) / 60000.0)
	deviation := charsPerMinute - targetCharsPerMinute
	if deviation < 0 {
		deviation = -deviation
	}

	score := 100 - int(deviation/targetCharsPerMinute*100)
	return clampScore(score)
}

// feedbackFor はスコア帯に応じたフィードバック文を返す。
func feedbackFor(score int) string {
	switch {
	case score >= 80:
		return "とても上手に話せました！この調子で続けましょう。"
	case score >= 50:
		return "よくできました。もう少しゆっくり、はっきり話すとさらに良くなります。"
	default:
		return "練習を続けましょう。短い文からゆっくり話す練習がおすすめです。"
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
