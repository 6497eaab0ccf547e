package chatws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 25 * time.Second
	// A max-length message written entirely as \uXXXX surrogate pairs takes
	// 12 bytes per character; anything that fits here reaches validation.
	maxFrameSize = 1 << 20
)

var ErrAuthFrameExpected = errors.New("first frame must be auth")

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// Client is one live connection. Writes go through the buffered send channel
// drained by WritePump; ReadPump feeds frames to the engine in arrival order.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	done    chan struct{}

	mu          sync.Mutex
	state       connState
	userID      uuid.UUID
	rooms       map[string]struct{}
	closeCode   int
	closeReason string
}

func newClient(id string, conn *websocket.Conn, bufferSize int, limiter *rate.Limiter) *Client {
	return &Client{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, bufferSize),
		limiter:   limiter,
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (c *Client) ID() string {
	return c.id
}

// UserID reports the authenticated user; ok is false before Connect succeeds.
func (c *Client) UserID() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == stateAuthenticated
}

func (c *Client) authenticate(userID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateUnauthenticated {
		return false
	}
	c.userID = userID
	c.state = stateAuthenticated
	return true
}

// markClosed transitions to Closed once. It returns the prior user binding and
// whether this call performed the transition.
func (c *Client) markClosed(code int, reason string) (uuid.UUID, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return uuid.Nil, false, false
	}
	wasAuthenticated := c.state == stateAuthenticated
	c.state = stateClosed
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
	return c.userID, wasAuthenticated, true
}

// enqueue never blocks; a full buffer drops the frame for this session only.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) allowSend() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) joinRoom(key string) {
	c.mu.Lock()
	c.rooms[key] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) leaveRoom(key string) {
	c.mu.Lock()
	delete(c.rooms, key)
	c.mu.Unlock()
}

func (c *Client) roomKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.rooms))
	for key := range c.rooms {
		keys = append(keys, key)
	}
	return keys
}

// Wait blocks until WritePump has returned. The connection must not be
// released before that.
func (c *Client) Wait() {
	<-c.done
}

// AwaitAuthToken reads the first frame, which must be an auth event, within timeout.
func (c *Client) AwaitAuthToken(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}

	event, err := DecodeInbound(raw)
	if err != nil {
		return "", err
	}
	auth, ok := event.(AuthRequest)
	if !ok {
		return "", ErrAuthFrameExpected
	}
	return auth.Token, nil
}

// ReadPump blocks until the connection fails or closes.
func (c *Client) ReadPump(ctx context.Context, engine *Engine) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				engine.logger.Warn("websocket read failed", slog.String("session", c.id), slog.Any("error", err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		engine.HandleFrame(ctx, c, payload)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.mu.Lock()
				code, reason := c.closeCode, c.closeReason
				c.mu.Unlock()
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.drain()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.drain()
				return
			}
		}
	}
}

// drain unblocks nothing but lets the read side observe the broken socket.
func (c *Client) drain() {
	_ = c.conn.SetReadDeadline(time.Now())
}
