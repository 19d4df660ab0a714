package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 128
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("connection buffer exceeded")
)

// Connection wraps a websocket; every outbound write goes through one writer goroutine.
type Connection struct {
	id     string
	userID string
	role   string

	ws     *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

func NewConnection(userID, role string, ws *websocket.Conn) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		role:   role,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }
func (c *Connection) Role() string   { return c.role }

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A client whose buffer is full is disconnected
// instead of stalling the sender.
func (c *Connection) Send(payload []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		c.CloseWith(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

func (c *Connection) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "session closed")
}

// CloseWith terminates the connection with the given close code and stops the write loop.
func (c *Connection) CloseWith(code int, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()

		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
