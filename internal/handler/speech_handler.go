package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/hanasu/internal/middleware"
	"github.com/hitoshi/hanasu/internal/model"
	"github.com/hitoshi/hanasu/internal/speech"
)

// SpeechServiceInterface は発話練習ハンドラーが必要とするサービスインターフェース。
type SpeechServiceInterface interface {
	CreateSession(ctx context.Context, userID, exercise string) (*model.SpeechSession, error)
	Record(ctx context.Context, userID string, input speech.RecordInput) (*model.SpeechRecording, error)
	Assess(ctx context.Context, userID string, input speech.RecordInput) (*model.SpeechAssessment, error)
	Progress(ctx context.Context, userID string) (*model.SpeechProgress, error)
}

// SpeechHandler は発話練習関連のHTTPハンドラー。
// すべてのエンドポイントは認証ゲートの内側に配置する。
type SpeechHandler struct {
	service SpeechServiceInterface
}

// NewSpeechHandler はSpeechHandlerを生成する。
func NewSpeechHandler(service SpeechServiceInterface) *SpeechHandler {
	return &SpeechHandler{service: service}
}

// CreateSession は発話練習セッションを作成する。
// POST /api/speech/session
func (h *SpeechHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	var req struct {
		Exercise string `json:"exercise"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body"))
		return
	}

	session, err := h.service.CreateSession(r.Context(), user.ID, req.Exercise)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Record は録音レコードを登録する。
// POST /api/speech/record
func (h *SpeechHandler) Record(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	var input speech.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body"))
		return
	}

	recording, err := h.service.Record(r.Context(), user.ID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recording)
}

// Assess は評価を実行する。
// POST /api/speech/assessment
func (h *SpeechHandler) Assess(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	var input speech.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body"))
		return
	}

	assessment, err := h.service.Assess(r.Context(), user.ID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// Progress は練習進捗の集計を返す。
// GET /api/speech/progress
func (h *SpeechHandler) Progress(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("ログインしていません"))
		return
	}

	progress, err := h.service.Progress(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// writeServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIErrorはカテゴリに応じたステータスで、それ以外は詳細をログに残し500で返す。
func writeServiceError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*model.APIError); ok {
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case model.ErrCodeValidationFailed:
			status = http.StatusBadRequest
		case model.ErrCodeUnauthorized, model.ErrCodeTokenExpired:
			status = http.StatusUnauthorized
		case model.ErrCodeChatSessionMissing, model.ErrCodeSpeechSessionMissing, model.ErrCodeUserNotFound:
			status = http.StatusNotFound
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}
	slog.Error("request failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
