package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicecollect/callcore/transport"
)

// newTTSServer runs a fake synthesis endpoint. handler is invoked for
// each "synthesize" request with the server-side connection.
func newTTSServer(t *testing.T, handler func(conn *websocket.Conn, req synthesizeRequest)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req synthesizeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Type == "synthesize" {
				handler(conn, req)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialSynthesizer(t *testing.T, srv *httptest.Server) *StreamingSynthesizer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn := transport.NewConn(transport.ConnConfig{URL: url})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := NewStreamingSynthesizer("test-tts", conn)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStreamingSynthesizer_StreamsChunksUntilDone(t *testing.T) {
	srv := newTTSServer(t, func(conn *websocket.Conn, req synthesizeRequest) {
		for i := 0; i < 3; i++ {
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte{byte(i), byte(i)})
		}
		_ = conn.WriteJSON(controlMessage{Type: "done"})
	})
	s := dialSynthesizer(t, srv)

	chunks, err := s.SynthesizeStream(context.Background(), "hello there", DefaultSynthesisConfig())
	if err != nil {
		t.Fatalf("SynthesizeStream() error = %v", err)
	}

	var got []AudioChunk
	for chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("chunk error: %v", chunk.Error)
		}
		got = append(got, chunk)
	}

	if len(got) != 4 {
		t.Fatalf("got %d chunks, want 3 audio + 1 final", len(got))
	}
	if !got[3].Final {
		t.Error("last chunk not flagged final")
	}
	for i := 0; i < 3; i++ {
		if got[i].Index != i {
			t.Errorf("chunk %d has index %d", i, got[i].Index)
		}
	}
}

func TestStreamingSynthesizer_RejectsEmptyText(t *testing.T) {
	srv := newTTSServer(t, func(conn *websocket.Conn, req synthesizeRequest) {})
	s := dialSynthesizer(t, srv)

	if _, err := s.SynthesizeStream(context.Background(), "", DefaultSynthesisConfig()); err != ErrEmptyText {
		t.Errorf("SynthesizeStream(\"\") = %v, want ErrEmptyText", err)
	}
}

func TestStreamingSynthesizer_SingleInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := newTTSServer(t, func(conn *websocket.Conn, req synthesizeRequest) {
		<-release
		_ = conn.WriteJSON(controlMessage{Type: "done"})
	})
	s := dialSynthesizer(t, srv)
	defer close(release)

	chunks, err := s.SynthesizeStream(context.Background(), "first utterance", DefaultSynthesisConfig())
	if err != nil {
		t.Fatalf("SynthesizeStream() error = %v", err)
	}

	if _, err := s.SynthesizeStream(context.Background(), "second utterance", DefaultSynthesisConfig()); err != ErrSynthesisActive {
		t.Errorf("overlapping SynthesizeStream() = %v, want ErrSynthesisActive", err)
	}

	go func() { release <- struct{}{} }()
	for range chunks {
	}
}

func TestStreamingSynthesizer_CancelAbortsStream(t *testing.T) {
	srv := newTTSServer(t, func(conn *websocket.Conn, req synthesizeRequest) {
		// Stream slowly forever; only cancellation ends this utterance.
		for i := 0; ; i++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte{byte(i)}); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
	s := dialSynthesizer(t, srv)

	chunks, err := s.SynthesizeStream(context.Background(), "a very long reply", DefaultSynthesisConfig())
	if err != nil {
		t.Fatalf("SynthesizeStream() error = %v", err)
	}

	// Let a few chunks through, then interrupt.
	<-chunks
	s.CancelSynthesis()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return // channel closed, stream unwound
			}
		case <-deadline:
			t.Fatal("chunk channel not closed after cancel")
		}
	}
}
