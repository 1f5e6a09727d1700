package server

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection. It is the hub subscriber for the
// connection and feeds inbound frames to its chat session.
type Client struct {
	id          string
	conn        *websocket.Conn
	addr        string
	session     *session.Session
	rateLimiter *rate.Limiter
	rateLimit   RateLimitConfig
	maxMessage  int64

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps conn. The session is attached by Attach before the pumps
// start.
func NewClient(conn *websocket.Conn, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:          uuid.NewString(),
		conn:        conn,
		addr:        addr,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		rateLimit:   cfg.RateLimit,
		maxMessage:  cfg.MaxMessageSize,
		send:        make(chan []byte, cfg.SendBuffer),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Attach binds the chat session driven by this connection.
func (c *Client) Attach(s *session.Session) {
	c.session = s
}

// Enqueue queues payload for the write pump without blocking.
func (c *Client) Enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Evict closes the send queue. The write pump drains it, sends a close frame
// and closes the connection.
func (c *Client) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// run starts both pumps and blocks until they have exited.
func (c *Client) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.readPump(ctx)
	}()
	wg.Wait()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError logs why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessage)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// allowFrame applies the per-connection rate limit. A dropped frame is
// reported to the session as an error event.
func (c *Client) allowFrame() bool {
	if c.rateLimiter == nil || c.rateLimiter.Allow() {
		return true
	}
	log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
	c.session.Reject(chat.ErrRateLimited)
	return false
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.session.Disconnect()
		c.Evict()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.allowFrame() {
			continue
		}
		c.session.Handle(ctx, raw)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.writeClose(websocket.CloseNormalClosure)
				return
			}
			if !c.writeFrame(websocket.TextMessage, message) {
				return
			}
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		case <-ctx.Done():
			c.writeClose(websocket.CloseGoingAway)
			return
		}
	}
}

// writeFrame writes one frame and reports whether the pump should continue.
// Each event travels in its own frame.
func (c *Client) writeFrame(messageType int, payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

func (c *Client) writeClose(code int) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing close message to %s: %v", c.addr, err)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
