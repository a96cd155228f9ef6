package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hanasu/internal/middleware"
	"github.com/hitoshi/hanasu/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	CreateSession(ctx context.Context, userID, title string) (*model.ChatSession, error)
	SendMessage(ctx context.Context, user *model.User, sessionID, content string) (*model.ChatMessage, error)
	ListMessages(ctx context.Context, userID, sessionID string) ([]*model.ChatMessage, error)
}

// ChatHandler は感情サポートチャット関連のHTTPハンドラー。
// すべてのエンドポイントは認証ゲートの内側に配置する。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// CreateSession はチャットセッションを作成する。
// POST /api/chat/session
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body"))
		return
	}

	session, err := h.service.CreateSession(r.Context(), user.ID, req.Title)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// SendMessage はメッセージを送信し、アシスタント応答を返す。
// POST /api/chat/message
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body"))
		return
	}

	message, err := h.service.SendMessage(r.Context(), user, req.SessionID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, message)
}

// ListMessages はセッションのメッセージ一覧を返す。
// GET /api/chat/messages/{id}
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	sessionID := chi.URLParam(r, "id")
	messages, err := h.service.ListMessages(r.Context(), user.ID, sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// メッセージ0件でもnullではなく空配列を返す
	if messages == nil {
		messages = []*model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}
