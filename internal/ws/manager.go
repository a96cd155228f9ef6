package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/hanasu/internal/auth"
	"github.com/hitoshi/hanasu/internal/emotion"
	"github.com/hitoshi/hanasu/internal/metrics"
	"github.com/hitoshi/hanasu/internal/model"
)

// Manager はリアルタイムチャネルの接続ライフサイクルを管理する。
//
// 接続ごとの状態遷移:
//
//	Connecting → {Unauthenticated, Authenticated} → Closed
//
// ハンドシェイク時にトークンが提示され解決できればAuthenticated、
// 提示され解決できなければ1008で即時クローズ、
// 提示されなければUnauthenticatedとして接続を維持する。
type Manager struct {
	resolver *auth.Resolver
	analyzer emotion.Analyzer
	metrics  *metrics.Collector
	upgrader websocket.Upgrader
}

// NewManager はManagerを生成する。
// allowedOriginが空の場合はオリジン検証を行わない（開発モード用）。
func NewManager(resolver *auth.Resolver, analyzer emotion.Analyzer, collector *metrics.Collector, allowedOrigin string) *Manager {
	return &Manager{
		resolver: resolver,
		analyzer: analyzer,
		metrics:  collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Handler は/wsエンドポイントのHTTPハンドラーを返す。
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("failed to upgrade websocket", slog.String("error", err.Error()))
			return
		}

		conn := newConn(wsConn)
		m.metrics.WSConnectionOpened()
		defer func() {
			conn.markClosed()
			m.metrics.WSConnectionClosed()
			slog.Info("websocket connection closed")
		}()

		// ハンドシェイク: クエリのtoken、なければAuthorizationヘッダー
		if token := auth.HandshakeToken(r); token != "" {
			user, err := m.resolver.ResolveToken(r.Context(), token)
			if err != nil || user == nil {
				if err != nil {
					slog.Error("handshake token resolution failed", slog.String("error", err.Error()))
				}
				m.metrics.RecordWSAuth(false)
				// 無効なトークンの提示はフレーム処理に入らず即時クローズ
				conn.CloseWithPolicyViolation("認証トークンが無効です")
				return
			}
			conn.SetUser(user)
			m.metrics.RecordWSAuth(true)
			slog.Info("websocket authenticated on handshake", slog.String("user_id", user.ID))
		} else {
			slog.Info("websocket connected without token")
		}

		m.readLoop(r.Context(), conn)
	}
}

// readLoop は受信フレームを到着順に1つずつ処理する。
// 処理エラーで接続を閉じることはない。トランスポートのクローズでのみ終了する。
func (m *Manager) readLoop(ctx context.Context, conn *Conn) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}
		m.handleFrame(ctx, conn, raw)
	}
}

// handleFrame は1フレームを処理する。
// 不正なJSONやハンドラー内のエラー・panicは汎用エラーフレームで応答し、
// 接続は維持する。
func (m *Manager) handleFrame(ctx context.Context, conn *Conn, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in websocket frame handler", slog.Any("panic", rec))
			_ = conn.Send(NewGenericError())
		}
	}()

	msg := InboundMessage{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("malformed websocket frame", slog.String("error", err.Error()))
		_ = conn.Send(NewGenericError())
		return
	}

	m.metrics.RecordWSFrame(msg.Type)

	switch msg.Type {
	case TypeAuth:
		// authフレームはそのフレームの処理としては終端。以降のディスパッチは行わない
		m.handleAuth(ctx, conn, msg)
	case TypeSpeechPractice:
		m.handleSpeechPractice(conn)
	case TypeChatMessage:
		m.handleChatMessage(ctx, conn, msg)
	default:
		// 未知のメッセージ種別は明示的に無視する（応答もエラーも返さない）
		slog.Debug("ignoring unknown websocket message type", slog.String("type", msg.Type))
	}
}

// handleAuth はインバンドのauthメッセージを処理する。
// 成功時はauth_successを1回だけ返す。失敗時はauth_errorを返し、接続は閉じない。
func (m *Manager) handleAuth(ctx context.Context, conn *Conn, msg InboundMessage) {
	data := AuthData{}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.metrics.RecordWSAuth(false)
			_ = conn.Send(NewAuthError("認証メッセージの形式が不正です"))
			return
		}
	}

	user, err := m.resolver.ResolveToken(ctx, data.Token)
	if err != nil {
		slog.Error("in-band token resolution failed", slog.String("error", err.Error()))
		m.metrics.RecordWSAuth(false)
		_ = conn.Send(NewAuthError("認証処理に失敗しました"))
		return
	}
	if user == nil {
		m.metrics.RecordWSAuth(false)
		_ = conn.Send(NewAuthError("認証トークンが無効です"))
		return
	}

	if prev := conn.User(); prev != nil && prev.ID != user.ID {
		// 再認証は後勝ちで上書きする
		slog.Warn("websocket identity overwritten by re-authentication",
			slog.String("previous_user_id", prev.ID),
			slog.String("new_user_id", user.ID),
		)
	}
	conn.SetUser(user)
	m.metrics.RecordWSAuth(true)
	_ = conn.Send(NewAuthSuccess(user.ID))
}

// handleSpeechPractice は発話練習フレームに受付応答を返す。
func (m *Manager) handleSpeechPractice(conn *Conn) {
	_ = conn.Send(NewSpeechFeedback())
}

// handleChatMessage はチャットフレームを感情分析コラボレーターに転送し、
// ai_responseを1回だけ返す。分析失敗時は汎用エラーフレームを返す。
func (m *Manager) handleChatMessage(ctx context.Context, conn *Conn, msg InboundMessage) {
	userType := model.UserTypeAdult
	if user := conn.User(); user != nil {
		userType = user.UserType
	}

	start := time.Now()
	result, err := m.analyzer.Analyze(ctx, userType, msg.Content)
	m.metrics.RecordAnalysisLatency(time.Since(start))
	if err != nil {
		slog.Error("emotion analysis failed", slog.String("error", err.Error()))
		m.metrics.RecordAnalysisFailure()
		_ = conn.Send(NewGenericError())
		return
	}

	m.metrics.RecordChatMessage()
	_ = conn.Send(OutboundMessage{
		Type: TypeAIResponse,
		Data: result,
	})
}
