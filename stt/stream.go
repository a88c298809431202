package stt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/transport"
	"github.com/voicecollect/callcore/types"
)

// eventBufferSize is the transcript event channel capacity.
const eventBufferSize = 64

// providerMessage is the wire shape of one STT provider payload.
type providerMessage struct {
	Type       string  `json:"type"` // "interim", "final", "end_of_speech"
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// StreamingTranscriber is a Service implementation over a reconnecting
// WebSocket transport. One instance serves one call; the inbound stream
// stays live continuously for the life of the call.
type StreamingTranscriber struct {
	name string
	cfg  Config
	conn *transport.Conn

	events chan types.TranscriptEvent
	done   chan struct{}

	mu           sync.Mutex
	pendingText  string
	pendingConf  float64
	silenceTimer *time.Timer
	closed       bool
	err          error
}

// NewStreamingTranscriber creates a transcriber for one call over conn.
func NewStreamingTranscriber(name string, conn *transport.Conn, cfg Config) *StreamingTranscriber {
	cfg.defaults()
	return &StreamingTranscriber{
		name:   name,
		cfg:    cfg,
		conn:   conn,
		events: make(chan types.TranscriptEvent, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// Name returns the provider identifier.
func (t *StreamingTranscriber) Name() string { return t.name }

// Start connects to the provider and begins the read loop.
func (t *StreamingTranscriber) Start(ctx context.Context) error {
	if err := t.conn.Connect(ctx); err != nil {
		return NewTranscriptionError(t.name, "connect", "initial connect failed", err, true)
	}
	go t.readLoop(ctx)
	return nil
}

// SendAudio forwards one inbound frame to the provider as binary PCM.
func (t *StreamingTranscriber) SendAudio(frame types.AudioFrame) error {
	if len(frame.Data) == 0 {
		return ErrEmptyAudio
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}

	return t.conn.WriteBinary(frame.Data)
}

// Events returns the transcript event stream.
func (t *StreamingTranscriber) Events() <-chan types.TranscriptEvent {
	return t.events
}

// Done is closed when the stream has terminated.
func (t *StreamingTranscriber) Done() <-chan struct{} { return t.done }

// Err returns the terminal error after Done is closed.
func (t *StreamingTranscriber) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close tears down the stream. Idempotent.
func (t *StreamingTranscriber) Close() error {
	return t.shutdown(nil)
}

// readLoop consumes provider messages until the stream fails beyond the
// reconnect budget or the transcriber is closed.
func (t *StreamingTranscriber) readLoop(ctx context.Context) {
	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed || ctx.Err() != nil {
				_ = t.shutdown(nil)
				return
			}

			// Transparent reconnect: the call must not notice a dropped
			// provider stream unless the budget is exhausted.
			if rerr := t.conn.Reconnect(ctx); rerr != nil {
				_ = t.shutdown(NewTranscriptionError(
					t.name, "stream", "provider stream lost", rerr, false))
				return
			}
			continue
		}

		t.handlePayload(payload)
	}
}

// handlePayload decodes and dispatches one provider message. Malformed
// payloads are dropped and logged, never surfaced as a crash.
func (t *StreamingTranscriber) handlePayload(payload []byte) {
	var msg providerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Warn("malformed provider payload dropped",
			"provider", t.name, "error", err)
		return
	}

	switch msg.Type {
	case "interim":
		t.onInterim(msg)
	case "final":
		t.finalize(msg.Text, msg.Confidence)
	case "end_of_speech":
		t.finalizePending()
	default:
		logger.Debug("unknown provider message type dropped",
			"provider", t.name, "type", msg.Type)
	}
}

// onInterim emits an interim event and arms the silence timeout that
// bounds the utterance if the provider never reports end-of-speech.
func (t *StreamingTranscriber) onInterim(msg providerMessage) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.pendingText = msg.Text
	t.pendingConf = msg.Confidence

	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
	}
	t.silenceTimer = time.AfterFunc(t.cfg.SilenceTimeout, t.finalizePending)
	t.mu.Unlock()

	t.emit(types.TranscriptEvent{
		Speaker:    types.SpeakerDebtor,
		Text:       msg.Text,
		Final:      false,
		Confidence: msg.Confidence,
		Timestamp:  time.Now(),
	})
}

// finalizePending promotes the accumulated interim text to the single
// final event for this utterance. No-op when nothing is pending, which
// guarantees one final per utterance boundary.
func (t *StreamingTranscriber) finalizePending() {
	t.mu.Lock()
	text, conf := t.pendingText, t.pendingConf
	t.pendingText, t.pendingConf = "", 0
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
		t.silenceTimer = nil
	}
	t.mu.Unlock()

	if text == "" {
		return
	}
	t.emitFinal(text, conf)
}

// finalize handles a provider-reported final transcript.
func (t *StreamingTranscriber) finalize(text string, conf float64) {
	t.mu.Lock()
	t.pendingText, t.pendingConf = "", 0
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
		t.silenceTimer = nil
	}
	t.mu.Unlock()

	if text == "" {
		return
	}
	t.emitFinal(text, conf)
}

func (t *StreamingTranscriber) emitFinal(text string, conf float64) {
	t.emit(types.TranscriptEvent{
		Speaker:    types.SpeakerDebtor,
		Text:       text,
		Final:      true,
		Confidence: conf,
		Timestamp:  time.Now(),
	})
}

// emit delivers an event without ever blocking the read loop.
func (t *StreamingTranscriber) emit(ev types.TranscriptEvent) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	select {
	case t.events <- ev:
	default:
		logger.Warn("transcript event dropped, consumer slow",
			"provider", t.name, "final", ev.Final)
	}
	t.mu.Unlock()
}

// shutdown terminates the stream once, recording err as the terminal error.
func (t *StreamingTranscriber) shutdown(err error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.err = err
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
		t.silenceTimer = nil
	}
	close(t.events)
	t.mu.Unlock()

	close(t.done)
	return t.conn.Close()
}
