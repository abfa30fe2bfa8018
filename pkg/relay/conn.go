package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the channel the actor writes to. *websocket.Conn is wrapped in
// wsConn; tests substitute their own implementation.
type Conn interface {
	WriteMessage(Message) error
	CloseWithReason(code int, reason string) error
}

// wsConn serializes writes to a gorilla connection, which allows only one
// concurrent writer.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func NewConn(c *websocket.Conn) Conn {
	return &wsConn{c: c}
}

func (w *wsConn) WriteMessage(m Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(m)
}

func (w *wsConn) CloseWithReason(code int, reason string) error {
	w.mu.Lock()
	deadline := time.Now().Add(2 * time.Second)
	_ = w.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	w.mu.Unlock()
	return w.c.Close()
}
