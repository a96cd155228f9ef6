package ws

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/hanasu/internal/model"
)

// Conn は1つのWebSocket接続のコンテキストを表す。
// 解決済みIdentityをソケットに動的に付与するのではなく、
// 接続確立時に生成するこの構造体に明示的に保持する。
// 受信フレームは接続ごとに1つの読み取りループで逐次処理されるため、
// userの読み書きはそのループ内に閉じるが、送信は他ゴルーチンからも
// 行われるため書き込みはミューテックスで保護する。
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closed  bool

	userMu sync.RWMutex
	user   *model.User
}

// newConn はConnを生成する。
func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// User は接続に紐づく解決済みユーザーを返す。未認証の場合はnil。
func (c *Conn) User() *model.User {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.user
}

// SetUser は接続にユーザーを紐づける。
// 認証済み接続への再認証は後勝ちで上書きする。
func (c *Conn) SetUser(user *model.User) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	c.user = user
}

// Authenticated は接続が認証済みかどうかを返す。
func (c *Conn) Authenticated() bool {
	return c.User() != nil
}

// Send はフレームをJSONで送信する。
// 接続が既に閉じている場合は書き込まずにエラーを返す（半閉ソケット対策）。
func (c *Conn) Send(msg OutboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return fmt.Errorf("connection is closed")
	}
	return c.ws.WriteJSON(msg)
}

// CloseWithPolicyViolation はポリシー違反コード（1008）で接続を閉じる。
// ハンドシェイクで無効なトークンが提示された場合にのみ使用する。
func (c *Conn) CloseWithPolicyViolation(reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
	c.closed = true
	_ = c.ws.Close()
}

// markClosed は接続を閉状態にする。以降のSendは失敗する。
func (c *Conn) markClosed() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.closed = true
	if c.ws != nil {
		_ = c.ws.Close()
	}
}
