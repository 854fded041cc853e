package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Clients only send control frames.
	maxMessageSize = 4 * 1024
)

// Conn is one live WebSocket subscribed to one command.
type Conn struct {
	ID        string
	CommandID string
	UserID    string

	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConn(ws *websocket.Conn, commandID, userID string) *Conn {
	return &Conn{
		ID:        uuid.NewString(),
		CommandID: commandID,
		UserID:    userID,
		ws:        ws,
	}
}

// SendEvent writes one event as a JSON text message.
func (c *Conn) SendEvent(e model.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(e)
}

// SendClose writes a close frame with code and reason.
func (c *Conn) SendClose(code int, reason string) error {
	return c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

// Ping writes a ping control frame.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
