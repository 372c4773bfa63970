package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardfelt/holdemd/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound queue per connection. A client that falls this far behind
	// is dropped rather than allowed to stall the table.
	sendBuffer = 256
)

// Connection is one websocket client. Writes go through a buffered
// channel so broadcasts never block on a slow peer.
type Connection struct {
	ws      *websocket.Conn
	service *Service
	logger  *log.Logger
	send    chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	sess *session.Session
}

// NewConnection wraps an upgraded websocket.
func NewConnection(ws *websocket.Conn, service *Service, logger *log.Logger) *Connection {
	return &Connection{
		ws:      ws,
		service: service,
		logger:  logger.WithPrefix("conn").With("remote", ws.RemoteAddr().String()),
		send:    make(chan []byte, sendBuffer),
		closed:  make(chan struct{}),
	}
}

// Start launches the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Session returns the identity bound to this connection, if any.
func (c *Connection) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// BindSession attaches an identified session to this connection.
func (c *Connection) BindSession(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = s
}

// Send implements the session transport. It never blocks: a full queue
// means the client cannot keep up, and the connection is dropped.
func (c *Connection) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return fmt.Errorf("server: connection closed")
	default:
		c.logger.Warn("send queue full, dropping connection")
		_ = c.Close()
		return fmt.Errorf("server: send queue full")
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
	return nil
}

// readPump reads messages from the websocket and hands them to the
// service. It owns the disconnect path: when the read loop ends the
// session is detached and the table told the player dropped.
func (c *Connection) readPump() {
	defer func() {
		c.service.HandleDisconnect(c)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		c.service.HandleMessage(c, data)
	}
}

// writePump drains the send queue to the websocket and keeps the
// connection alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
