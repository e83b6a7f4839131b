package server

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/progress"
)

var (
	// ErrConnClosed is returned by Client.Send after the connection closed.
	ErrConnClosed = errors.New("push connection closed")
	// ErrSendBufferFull is returned when a slow browser has not drained its queue.
	ErrSendBufferFull = errors.New("push send buffer full")
)

// Client is one browser push connection. Writes are queued on send and
// drained by writePump, so Send never blocks on the network.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	id     string // connection id, for logs only

	mu       sync.Mutex
	closed   bool
	clientID string // push id bound by the register message

	closeOnce sync.Once
}

// Send queues payload. It implements Conn.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Writable reports whether the connection still accepts writes.
func (c *Client) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// ClientID returns the registered push id, or "" before registration.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// close stops accepting writes and lets writePump drain and exit.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		msg, err := progress.Decode(data)
		if err != nil {
			c.server.logger.Warnw("Ignoring malformed push message", "conn_id", c.id, logger.FieldError, err)
			continue
		}
		c.routeMessage(msg)
	}
}

// handleReadError logs unexpected read errors. Normal closes are silent.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.server.logger.Warnw("WebSocket read error", "conn_id", c.id, logger.FieldError, err)
	}
}

func (c *Client) routeMessage(msg progress.Message) {
	switch msg.Type {
	case progress.TypeRegister:
		c.handleRegister(msg.ClientID)
	case "ping":
		// the read itself refreshed the deadline
	default:
		c.server.logger.Debugw("Unknown push message type", "conn_id", c.id, "type", msg.Type)
	}
}

// handleRegister binds clientID to this connection and confirms it. A
// connection holds one id; registering a new one releases the old.
func (c *Client) handleRegister(clientID string) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		c.server.logger.Warnw("Register message without clientId", "conn_id", c.id)
		return
	}

	c.mu.Lock()
	prev := c.clientID
	c.clientID = clientID
	c.mu.Unlock()

	if prev != "" && prev != clientID {
		c.server.registry.Unregister(prev, c)
	}
	c.server.registry.Register(clientID, c)

	confirm, err := progress.EncodeRegisterConfirm(clientID)
	if err != nil {
		c.server.logger.Errorw("Failed to encode register_confirm", logger.FieldClientID, clientID, logger.FieldError, err)
		return
	}
	if err := c.Send(confirm); err != nil {
		c.server.logger.Warnw("Failed to queue register_confirm", logger.FieldClientID, clientID, logger.FieldError, err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.server.logger.Warnw("WebSocket write error",
					"conn_id", c.id,
					logger.FieldClientID, c.ClientID(),
					logger.FieldError, err,
				)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
