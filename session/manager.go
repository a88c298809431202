package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/voicecollect/callcore/audio"
	"github.com/voicecollect/callcore/config"
	"github.com/voicecollect/callcore/conversation"
	"github.com/voicecollect/callcore/evaluator"
	"github.com/voicecollect/callcore/events"
	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/providers"
	"github.com/voicecollect/callcore/stt"
	"github.com/voicecollect/callcore/tts"
	"github.com/voicecollect/callcore/types"
)

// DefaultMaxConcurrentTurns bounds in-flight model calls across all
// sessions. This is a shared resource limit, not a per-call lock: call
// volume scales independent of provider connection count.
const DefaultMaxConcurrentTurns = 32

// ManagerConfig tunes the session manager.
type ManagerConfig struct {
	MaxConcurrentTurns int64
	Turn               Config
}

// ManagerConfigFrom maps the loaded service configuration onto manager
// and per-turn settings.
func ManagerConfigFrom(cfg *config.Config) ManagerConfig {
	return ManagerConfig{
		MaxConcurrentTurns: int64(cfg.Session.MaxConcurrentTurns),
		Turn: Config{
			TurnTimeout:      cfg.Session.TurnTimeout,
			LatencyThreshold: cfg.Session.LatencyThreshold,
			Synthesis: tts.SynthesisConfig{
				Voice:      cfg.TTS.Voice,
				Format:     cfg.TTS.Format,
				SampleRate: cfg.TTS.SampleRate,
				Speed:      cfg.TTS.Speed,
			},
		},
	}
}

// NewManagerFromConfig builds a Manager from the loaded service
// configuration. The base provider is wrapped with the configured
// rate limit so turn generation honors the backend quota.
func NewManagerFromConfig(base providers.Provider, records Recorder, bus *events.Bus, cfg *config.Config) (*Manager, error) {
	limited := providers.NewRateLimited(base, cfg.Provider.RPS, cfg.Provider.Burst)
	return NewManager(limited, records, bus, ManagerConfigFrom(cfg))
}

// Manager runs call sessions concurrently. Sessions never share
// mutable state; the only cross-session coupling is the model call
// semaphore and the shared event bus.
type Manager struct {
	provider providers.Provider
	eval     *evaluator.Evaluator
	records  Recorder
	bus      *events.Bus
	llmSlots *semaphore.Weighted
	cfg      ManagerConfig

	mu     sync.Mutex
	active map[string]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a session manager. The evaluator's schema is
// compiled once here and shared by every session.
func NewManager(provider providers.Provider, records Recorder, bus *events.Bus, cfg ManagerConfig) (*Manager, error) {
	if cfg.MaxConcurrentTurns <= 0 {
		cfg.MaxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	eval, err := evaluator.New()
	if err != nil {
		return nil, err
	}
	return &Manager{
		provider: provider,
		eval:     eval,
		records:  records,
		bus:      bus,
		llmSlots: semaphore.NewWeighted(cfg.MaxConcurrentTurns),
		cfg:      cfg,
		active:   make(map[string]struct{}),
	}, nil
}

// StartCallRequest is the call-start command from the scheduling
// collaborator. The audio transport and provider streams are already
// established.
type StartCallRequest struct {
	// SessionID identifies the call; empty generates a UUID.
	SessionID string
	Debtor    types.DebtorContext
	Stage     types.DelinquencyStage

	Transcriber stt.Service
	Synthesizer tts.Service
	Audio       *audio.Session
	// Interrupt is optional; a default controller is built when nil.
	Interrupt *audio.Controller
}

// StartCall launches a session goroutine for a connected call and
// returns its session ID. The session runs until the call terminates;
// a failure in one session never affects another.
func (m *Manager) StartCall(ctx context.Context, req StartCallRequest) (string, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if _, exists := m.active[sessionID]; exists {
		m.mu.Unlock()
		return "", ErrSessionActive
	}
	m.active[sessionID] = struct{}{}
	m.mu.Unlock()

	call := &types.CallSession{
		ID:        sessionID,
		Debtor:    req.Debtor,
		Stage:     req.Stage,
		State:     types.StateGreeting,
		StartedAt: time.Now(),
	}

	interrupt := req.Interrupt
	if interrupt == nil {
		interrupt = audio.NewController(req.Audio, req.Synthesizer, audio.InterruptionConfig{})
	}

	orch, err := NewOrchestrator(call, conversation.NewMachine(sessionID), Dependencies{
		Provider:    m.provider,
		Evaluator:   m.eval,
		Transcriber: req.Transcriber,
		Synthesizer: req.Synthesizer,
		Audio:       req.Audio,
		Interrupt:   interrupt,
		Emitter:     events.NewEmitter(m.bus, sessionID),
		Records:     m.records,
		LLMSlots:    m.llmSlots,
	}, m.cfg.Turn)
	if err != nil {
		m.release(sessionID)
		return "", err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(sessionID)

		if err := orch.Run(ctx); err != nil {
			logger.Error("session ended with error", "call_id", sessionID, "error", err)
		}
	}()

	return sessionID, nil
}

// ActiveSessions reports the number of live calls.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown stops accepting new calls and waits for live sessions to
// finish or the context to expire. Live calls are not torn down here;
// cancel their contexts to force termination.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()
}
