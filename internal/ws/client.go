package ws

import (
	"sync"
	"time"

	"chatrelaygo/internal/relay"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// clientConn wraps one upgraded websocket connection. Writes are
// serialized with a mutex because broadcasts from other members' reader
// goroutines and this member's own echo land on the same socket.
type clientConn struct {
	id      string
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func newClientConn(raw *websocket.Conn) *clientConn {
	return &clientConn{id: uuid.NewString(), rawConn: raw}
}

func (c *clientConn) SendEvent(ev relay.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(ev)
}

// Close sends a coded close frame, then drops the transport. Safe to
// call on an already-failed connection.
func (c *clientConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.rawConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.rawConn.Close()
}

// receiveText blocks for the next inbound payload. Any read error,
// clean close included, signals the disconnect path.
func (c *clientConn) receiveText() (string, error) {
	_, data, err := c.rawConn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
