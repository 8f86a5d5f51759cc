package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn wraps a websocket and coordinates outbound writes via a buffered
// channel. A connection is safe for concurrent use by the hub and its
// session.
type Conn struct {
	ID     string
	UserID int64

	ws       *websocket.Conn
	send     chan []byte
	once     sync.Once
	closed   chan struct{}
	writeWait time.Duration
	pingEvery time.Duration
}

// NewConn constructs a Conn for an authenticated user.
func NewConn(userID int64, ws *websocket.Conn, sendBuffer int, writeWait, pingEvery time.Duration) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 128
	}
	return &Conn{
		ID:        uuid.NewString(),
		UserID:    userID,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		closed:    make(chan struct{}),
		writeWait: writeWait,
		pingEvery: pingEvery,
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Conn) Start() {
	go c.writeLoop()
}

// Send enqueues a payload for delivery. A slow client that fills the buffer
// is closed to keep backpressure bounded.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("send buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// from any goroutine, any number of times.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(c.writeWait)
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
