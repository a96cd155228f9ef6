// Package chat は感情サポートチャットのビジネスロジックを提供する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/hanasu/internal/emotion"
	"github.com/hitoshi/hanasu/internal/model"
	"github.com/hitoshi/hanasu/internal/repository"
)

// Service はチャットセッションとメッセージのビジネスロジックを提供する。
// 利用者入力はストレージに書き込む前にサニタイズする。
type Service struct {
	chatRepo  repository.ChatRepository
	analyzer  emotion.Analyzer
	sanitizer *bluemonday.Policy
}

// NewService はServiceを生成する。
func NewService(chatRepo repository.ChatRepository, analyzer emotion.Analyzer) *Service {
	return &Service{
		chatRepo: chatRepo,
		analyzer: analyzer,
		// チャット本文はプレーンテキストのみ許可する
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// CreateSession は新しいチャットセッションを作成する。
func (s *Service) CreateSession(ctx context.Context, userID, title string) (*model.ChatSession, error) {
	session := &model.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     s.sanitizer.Sanitize(title),
		CreatedAt: time.Now(),
	}

	if err := s.chatRepo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	slog.Info("chat session created",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
	)
	return session, nil
}

// SendMessage は利用者メッセージを永続化し、感情分析コラボレーターの応答を
// アシスタントメッセージとして追記して返す。
// セッションが存在しないか他ユーザーのものである場合はNotFoundエラーを返す。
func (s *Service) SendMessage(ctx context.Context, user *model.User, sessionID, content string) (*model.ChatMessage, error) {
	if content == "" {
		return nil, model.NewValidationError("content")
	}

	session, err := s.findOwnedSession(ctx, user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	content = s.sanitizer.Sanitize(content)
	now := time.Now()

	userMessage := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      model.MessageRoleUser,
		Content:   content,
		CreatedAt: now,
	}
	if err := s.chatRepo.AppendMessage(ctx, userMessage); err != nil {
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}

	result, err := s.analyzer.Analyze(ctx, user.UserType, content)
	if err != nil {
		slog.Error("emotion analysis failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewEmotionAPIError()
	}

	assistantMessage := &model.ChatMessage{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		Role:        model.MessageRoleAssistant,
		Content:     result.Response,
		Emotion:     result.Emotion,
		SupportType: result.SupportType,
		CreatedAt:   time.Now(),
	}
	if err := s.chatRepo.AppendMessage(ctx, assistantMessage); err != nil {
		return nil, fmt.Errorf("failed to append assistant message: %w", err)
	}

	return assistantMessage, nil
}

// ListMessages はセッションのメッセージ一覧を返す。
// セッションが存在しないか他ユーザーのものである場合はNotFoundエラーを返す。
func (s *Service) ListMessages(ctx context.Context, userID, sessionID string) ([]*model.ChatMessage, error) {
	if _, err := s.findOwnedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	messages, err := s.chatRepo.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// findOwnedSession は指定ユーザーが所有するセッションを取得する。
func (s *Service) findOwnedSession(ctx context.Context, userID, sessionID string) (*model.ChatSession, error) {
	if sessionID == "" {
		return nil, model.NewValidationError("sessionId")
	}

	session, err := s.chatRepo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, model.NewChatSessionNotFoundError(sessionID)
	}
	return session, nil
}
