// Package audio owns the lifecycle of one call's bidirectional audio
// stream: inbound frame sequencing, the outbound playback queue, and
// interruption handling.
package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/types"
)

// ErrSessionClosed is returned when operations are attempted on a closed session.
var ErrSessionClosed = errors.New("audio session closed")

// defaultInboundBuffer is the inbound frame channel capacity.
const defaultInboundBuffer = 256

// OutboundSink is the transport side of the playback path. WriteChunk
// sends one audio chunk; Stop tells the transport to cut playback
// mid-utterance.
type OutboundSink interface {
	WriteChunk(ctx context.Context, chunk []byte) error
	Stop(ctx context.Context) error
}

// SessionConfig configures an audio Session.
type SessionConfig struct {
	// CallID tags log lines. Required.
	CallID string

	// InboundBuffer is the inbound frame channel capacity.
	// Default: 256 frames.
	InboundBuffer int
}

func (c *SessionConfig) defaults() {
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = defaultInboundBuffer
	}
}

// Session buffers inbound audio frames for transcription and owns the
// outbound playback queue. A single atomic speaking flag, set when the
// first outbound chunk of an utterance is enqueued and cleared on flush
// or natural completion, is the only source of truth for "am I speaking".
type Session struct {
	cfg  SessionConfig
	sink OutboundSink

	speaking atomic.Bool

	mu            sync.Mutex
	queue         [][]byte
	utteranceDone bool
	lastInbound   time.Time
	closed        bool

	inbound chan types.AudioFrame
	wake    chan struct{}
	done    chan struct{}
}

// NewSession creates an audio Session writing outbound audio to sink and
// starts its playback pump.
func NewSession(sink OutboundSink, cfg SessionConfig) *Session {
	cfg.defaults()
	s := &Session{
		cfg:     cfg,
		sink:    sink,
		inbound: make(chan types.AudioFrame, cfg.InboundBuffer),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.pump()
	return s
}

// Ingest accepts an inbound audio frame from the transport. It tolerates
// out-of-order, duplicate, and dropped frames: frames are sequenced by
// timestamp and anything not newer than the newest accepted frame is
// silently dropped. Ingest never errors on disorder.
func (s *Session) Ingest(frame types.AudioFrame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !frame.Timestamp.After(s.lastInbound) {
		s.mu.Unlock()
		return nil
	}
	s.lastInbound = frame.Timestamp

	// Send while holding the mutex so Close cannot race the channel close.
	select {
	case s.inbound <- frame:
	default:
		// Transcriber fell behind; audio is lossy by contract.
		logger.Debug("inbound frame dropped, buffer full", "call_id", s.cfg.CallID)
	}
	s.mu.Unlock()
	return nil
}

// Inbound returns the channel of sequenced inbound frames consumed by the
// transcriber. The channel is closed when the session closes.
func (s *Session) Inbound() <-chan types.AudioFrame {
	return s.inbound
}

// EnqueueOutbound appends a synthesized chunk to the playback queue. The
// first chunk of an utterance sets the speaking flag.
func (s *Session) EnqueueOutbound(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.queue = append(s.queue, chunk)
	s.utteranceDone = false
	s.speaking.Store(true)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// CompleteUtterance marks the current utterance as fully enqueued. The
// speaking flag clears naturally once the queue drains.
func (s *Session) CompleteUtterance() {
	s.mu.Lock()
	s.utteranceDone = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush clears the playback queue and signals the transport to stop
// mid-utterance. It holds the queue mutex for its whole duration, so no
// new chunk can be enqueued until the flush has completed. Returns the
// number of discarded chunks.
func (s *Session) Flush(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushed := len(s.queue)
	s.queue = nil
	s.utteranceDone = true
	s.speaking.Store(false)

	if err := s.sink.Stop(ctx); err != nil {
		logger.Warn("transport stop failed during flush", "call_id", s.cfg.CallID, "error", err)
	}
	return flushed
}

// Speaking reports whether the agent currently has outbound audio queued
// or playing. This single flag governs both the interruption trigger and
// the orchestrator's decision to start the next turn.
func (s *Session) Speaking() bool {
	return s.speaking.Load()
}

// Close releases the session. It is idempotent and callable from error paths.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.speaking.Store(false)
	s.mu.Unlock()

	close(s.done)
	close(s.inbound)
	return nil
}

// pump drains the playback queue into the sink, one chunk at a time.
func (s *Session) pump() {
	ctx := context.Background()
	for {
		s.mu.Lock()
		var chunk []byte
		if len(s.queue) > 0 {
			chunk = s.queue[0]
			s.queue = s.queue[1:]
		} else if s.utteranceDone {
			// Natural completion clears the speaking flag.
			s.speaking.Store(false)
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return
		}

		if chunk != nil {
			if err := s.sink.WriteChunk(ctx, chunk); err != nil {
				logger.Warn("outbound chunk write failed", "call_id", s.cfg.CallID, "error", err)
			}
			continue
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// QueueLen reports the number of chunks waiting to play. Used by tests
// and the latency monitor.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
