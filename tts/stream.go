package tts

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/transport"
)

// chunkBufferSize is the audio chunk channel capacity.
const chunkBufferSize = 32

// synthesizeRequest is the wire shape of a synthesis request.
type synthesizeRequest struct {
	Type       string  `json:"type"` // "synthesize" or "cancel"
	Text       string  `json:"text,omitempty"`
	Voice      string  `json:"voice,omitempty"`
	Format     string  `json:"format,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
}

// controlMessage is the wire shape of provider text frames.
type controlMessage struct {
	Type    string `json:"type"` // "done" or "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamingSynthesizer is a Service implementation over a WebSocket
// transport. Binary frames carry audio; text frames carry control
// messages. At most one synthesis is in flight per session.
type StreamingSynthesizer struct {
	name string
	conn *transport.Conn

	mu     sync.Mutex
	cancel context.CancelFunc
	active bool
	closed bool
}

// NewStreamingSynthesizer creates a synthesizer for one call over conn.
// The connection must already be established.
func NewStreamingSynthesizer(name string, conn *transport.Conn) *StreamingSynthesizer {
	return &StreamingSynthesizer{name: name, conn: conn}
}

// Name returns the provider identifier.
func (s *StreamingSynthesizer) Name() string { return s.name }

// SynthesizeStream sends text to the provider and streams audio chunks
// back until the provider reports completion, an error occurs, or the
// synthesis is cancelled.
func (s *StreamingSynthesizer) SynthesizeStream(ctx context.Context, text string, config SynthesisConfig) (<-chan AudioChunk, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.active {
		s.mu.Unlock()
		return nil, ErrSynthesisActive
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.active = true
	s.mu.Unlock()

	req := synthesizeRequest{
		Type:       "synthesize",
		Text:       text,
		Voice:      config.Voice,
		Format:     config.Format,
		SampleRate: config.SampleRate,
		Speed:      config.Speed,
	}
	if err := s.conn.WriteJSON(req); err != nil {
		s.finish()
		return nil, NewSynthesisError(s.name, "request", "synthesis request failed", err, true)
	}

	out := make(chan AudioChunk, chunkBufferSize)
	go s.readLoop(streamCtx, out)
	return out, nil
}

// CancelSynthesis aborts any in-flight synthesis. The caller does not
// wait for the provider to acknowledge: the stream is torn down locally
// first and the cancel notice is best-effort.
func (s *StreamingSynthesizer) CancelSynthesis() {
	s.mu.Lock()
	cancel := s.cancel
	active := s.active
	s.mu.Unlock()

	if !active || cancel == nil {
		return
	}
	cancel()

	if err := s.conn.WriteJSON(synthesizeRequest{Type: "cancel"}); err != nil {
		logger.Debug("synthesis cancel notice failed", "provider", s.name, "error", err)
	}
}

// Close releases the session. Idempotent.
func (s *StreamingSynthesizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return s.conn.Close()
}

// readLoop streams provider frames into out until done, error, or cancel.
func (s *StreamingSynthesizer) readLoop(ctx context.Context, out chan<- AudioChunk) {
	defer func() {
		s.finish()
		close(out)
	}()

	index := 0
	for {
		if ctx.Err() != nil {
			return
		}

		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.deliver(ctx, out, AudioChunk{
				Index: index,
				Error: NewSynthesisError(s.name, "stream", "synthesis stream lost", err, true),
			})
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.deliver(ctx, out, AudioChunk{Data: payload, Index: index})
			index++

		case websocket.TextMessage:
			var ctrl controlMessage
			if err := json.Unmarshal(payload, &ctrl); err != nil {
				logger.Warn("malformed synthesis control frame dropped",
					"provider", s.name, "error", err)
				continue
			}
			switch ctrl.Type {
			case "done":
				s.deliver(ctx, out, AudioChunk{Index: index, Final: true})
				return
			case "error":
				s.deliver(ctx, out, AudioChunk{
					Index: index,
					Error: NewSynthesisError(s.name, ctrl.Code, ctrl.Message, nil, false),
				})
				return
			}
		}
	}
}

// deliver sends a chunk unless the synthesis was cancelled meanwhile.
func (s *StreamingSynthesizer) deliver(ctx context.Context, out chan<- AudioChunk, chunk AudioChunk) {
	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}

// finish clears the in-flight marker.
func (s *StreamingSynthesizer) finish() {
	s.mu.Lock()
	s.active = false
	s.cancel = nil
	s.mu.Unlock()
}
