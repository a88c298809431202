// Package transport provides a reconnecting WebSocket connection shared by
// the streaming STT and TTS adapters. It separates transport-level concerns
// (connect, send, receive, reconnect with backoff) from provider-specific
// protocol details.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicecollect/callcore/logger"
)

// Default connection constants.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 4 * 1024 * 1024 // 4MB

	// Reconnect policy for live call streams: start fast, cap low, give
	// up quickly so the call can be escalated instead of left in dead air.
	DefaultBackoffBase = 250 * time.Millisecond
	DefaultBackoffMax  = 4 * time.Second
	DefaultMaxAttempts = 5
)

// ErrConnClosed is returned when operations are attempted on a closed connection.
var ErrConnClosed = errors.New("transport connection closed")

// ReconnectExhaustedError reports that every reconnect attempt failed.
// Receiving it escalates the call to the fatal path.
type ReconnectExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("reconnect exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last connection error.
func (e *ReconnectExhaustedError) Unwrap() error { return e.Last }

// ConnConfig configures the WebSocket connection behavior.
type ConnConfig struct {
	// URL is the WebSocket endpoint URL.
	URL string

	// Headers are sent during the WebSocket handshake.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// BackoffBase is the initial reconnect delay. Defaults to DefaultBackoffBase.
	BackoffBase time.Duration

	// BackoffMax caps the reconnect delay. Defaults to DefaultBackoffMax.
	BackoffMax time.Duration

	// MaxAttempts is the number of reconnect attempts before the
	// connection gives up. Defaults to DefaultMaxAttempts.
	MaxAttempts int
}

func (c *ConnConfig) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}

// Conn manages a WebSocket connection with reconnect and graceful shutdown.
// It handles the transport layer while leaving message encoding to the caller.
type Conn struct {
	cfg ConnConfig

	mu      sync.Mutex
	writeMu sync.Mutex // serializes writes (gorilla/websocket requirement)
	conn    *websocket.Conn
	closed  bool
}

// NewConn creates a Conn. Call Connect to establish the connection.
func NewConn(cfg ConnConfig) *Conn {
	cfg.defaults()
	return &Conn{cfg: cfg}
}

// Connect dials the endpoint once.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial %s: status %d: %w", c.cfg.URL, resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial %s: %w", c.cfg.URL, err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	return nil
}

// Reconnect re-establishes the connection with exponential backoff
// starting at BackoffBase, doubling, capped at BackoffMax, for up to
// MaxAttempts attempts. It returns *ReconnectExhaustedError once the
// budget is spent.
func (c *Conn) Reconnect(ctx context.Context) error {
	delay := c.cfg.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := c.Connect(ctx); err != nil {
			lastErr = err
			logger.Warn("reconnect attempt failed",
				"url", c.cfg.URL, "attempt", attempt, "error", err)
			delay *= 2
			if delay > c.cfg.BackoffMax {
				delay = c.cfg.BackoffMax
			}
			continue
		}

		logger.Info("reconnected", "url", c.cfg.URL, "attempt", attempt)
		return nil
	}

	return &ReconnectExhaustedError{Attempts: c.cfg.MaxAttempts, Last: lastErr}
}

// WriteJSON sends a JSON message with the configured write deadline.
func (c *Conn) WriteJSON(v any) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return conn.WriteJSON(v)
}

// WriteBinary sends a binary message with the configured write deadline.
func (c *Conn) WriteBinary(data []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// ReadMessage reads the next message from the connection.
func (c *Conn) ReadMessage() (int, []byte, error) {
	conn, err := c.current()
	if err != nil {
		return 0, nil, err
	}
	return conn.ReadMessage()
}

// Close closes the connection. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// current returns the active websocket connection.
func (c *Conn) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnClosed
	}
	if c.conn == nil {
		return nil, errors.New("transport not connected")
	}
	return c.conn, nil
}
