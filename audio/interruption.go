package audio

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/types"
)

// Default interruption trigger thresholds.
const (
	DefaultMinInterimConfidence = 0.4
	DefaultMinInterimChars      = 2
)

// SynthesisCanceller cancels any in-flight synthesis for the current
// utterance. Implemented by the TTS adapter.
type SynthesisCanceller interface {
	CancelSynthesis()
}

// InterruptionConfig configures the interruption trigger.
type InterruptionConfig struct {
	// MinInterimConfidence is the minimum transcript confidence for an
	// interim event to count as real speech (default: 0.4).
	MinInterimConfidence float64

	// MinInterimChars is the minimum trimmed text length for an interim
	// event to count as non-trivial speech (default: 2).
	MinInterimChars int

	// Energy optionally gates frame-level triggers. When nil, only
	// interim transcript events can trigger an interruption.
	Energy *EnergyGate
}

func (c *InterruptionConfig) defaults() {
	if c.MinInterimConfidence <= 0 {
		c.MinInterimConfidence = DefaultMinInterimConfidence
	}
	if c.MinInterimChars <= 0 {
		c.MinInterimChars = DefaultMinInterimChars
	}
}

// Controller watches inbound speech activity while the session's speaking
// flag is set. On detection it flushes the playback queue and cancels
// in-flight synthesis, exactly once per agent utterance. After the flush
// the session keeps accepting inbound audio immediately; it never waits
// for the cancelled synthesis to unwind.
type Controller struct {
	cfg     InterruptionConfig
	session *Session
	tts     SynthesisCanceller

	mu        sync.Mutex
	triggered bool
	onTrigger func(flushed int)
}

// NewController creates an interruption Controller for the given session.
func NewController(session *Session, tts SynthesisCanceller, cfg InterruptionConfig) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:     cfg,
		session: session,
		tts:     tts,
	}
}

// OnTrigger registers a callback invoked after each interruption flush.
func (c *Controller) OnTrigger(fn func(flushed int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrigger = fn
}

// OnInterim processes an interim transcript event. An event with
// non-trivial speech content while the agent is speaking triggers the
// interruption. Final events are handled by the orchestrator, not here.
func (c *Controller) OnInterim(ctx context.Context, ev types.TranscriptEvent) {
	if ev.Final || !c.session.Speaking() {
		return
	}
	if ev.Confidence < c.cfg.MinInterimConfidence {
		return
	}
	if len(strings.TrimSpace(ev.Text)) < c.cfg.MinInterimChars {
		return
	}
	c.trigger(ctx)
}

// ProcessFrame processes an inbound audio frame through the energy gate,
// for transports where interim transcripts lag behind raw audio. No-op
// when no gate is configured.
func (c *Controller) ProcessFrame(ctx context.Context, frame types.AudioFrame) {
	if c.cfg.Energy == nil || !c.session.Speaking() {
		return
	}
	at := frame.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	if c.cfg.Energy.Process(frame.Data, at) {
		c.trigger(ctx)
	}
}

// trigger performs the flush-and-cancel, at most once per utterance.
func (c *Controller) trigger(ctx context.Context) {
	c.mu.Lock()
	if c.triggered {
		c.mu.Unlock()
		return
	}
	c.triggered = true
	onTrigger := c.onTrigger
	c.mu.Unlock()

	flushed := c.session.Flush(ctx)
	if c.tts != nil {
		c.tts.CancelSynthesis()
	}

	logger.Interruption(c.session.cfg.CallID, flushed)
	if onTrigger != nil {
		onTrigger(flushed)
	}
}

// Reset arms the controller for the next agent utterance. Called by the
// orchestrator each time it starts speaking, including re-prompts after
// evaluation failures, which are interrupted identically.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.triggered = false
	c.mu.Unlock()

	if c.cfg.Energy != nil {
		c.cfg.Energy.Reset()
	}
}

// Triggered reports whether an interruption fired for the current utterance.
func (c *Controller) Triggered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggered
}
