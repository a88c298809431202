package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades and echoes every message back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConn_ConnectAndEcho(t *testing.T) {
	srv := echoServer(t)

	c := NewConn(ConnConfig{URL: wsURL(srv)})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg map[string]string
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg["type"] != "ping" {
		t.Errorf("echoed type = %q, want %q", msg["type"], "ping")
	}
}

func TestConn_WriteBinary(t *testing.T) {
	srv := echoServer(t)

	c := NewConn(ConnConfig{URL: wsURL(srv)})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	frame := []byte{0x00, 0x01, 0x02, 0x03}
	if err := c.WriteBinary(frame); err != nil {
		t.Fatalf("WriteBinary() error = %v", err)
	}

	mt, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("message type = %d, want %d", mt, websocket.BinaryMessage)
	}
	if len(data) != len(frame) {
		t.Errorf("echoed %d bytes, want %d", len(data), len(frame))
	}
}

func TestConn_WriteBeforeConnect(t *testing.T) {
	c := NewConn(ConnConfig{URL: "ws://127.0.0.1:1/unused"})
	defer c.Close()

	if err := c.WriteJSON(map[string]string{}); err == nil {
		t.Error("WriteJSON() before Connect should fail")
	}
}

func TestConn_ClosedConn(t *testing.T) {
	srv := echoServer(t)

	c := NewConn(ConnConfig{URL: wsURL(srv)})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Idempotent
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := c.WriteJSON(map[string]string{}); !errors.Is(err, ErrConnClosed) {
		t.Errorf("WriteJSON() after Close = %v, want ErrConnClosed", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Connect() after Close = %v, want ErrConnClosed", err)
	}
}

func TestConn_ReconnectAfterServerRecovers(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewConn(ConnConfig{
		URL:         wsURL(srv),
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
		MaxAttempts: 10,
	})
	defer c.Close()

	// First dial fails; the server comes back mid-backoff.
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() against unhealthy server should fail")
	}

	go func() {
		time.Sleep(25 * time.Millisecond)
		healthy.Store(true)
	}()

	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if err := c.WriteBinary([]byte{0x01}); err != nil {
		t.Errorf("WriteBinary() after reconnect error = %v", err)
	}
}

func TestConn_ReconnectExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewConn(ConnConfig{
		URL:         wsURL(srv),
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		MaxAttempts: 3,
	})
	defer c.Close()

	err := c.Reconnect(context.Background())
	var exhausted *ReconnectExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Reconnect() = %v, want *ReconnectExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if exhausted.Unwrap() == nil {
		t.Error("Unwrap() should return the last dial error")
	}
}

func TestConn_ReconnectRespectsContext(t *testing.T) {
	c := NewConn(ConnConfig{
		URL:         "ws://127.0.0.1:1/unused",
		BackoffBase: time.Hour,
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.Reconnect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Reconnect() = %v, want context.DeadlineExceeded", err)
	}
}
