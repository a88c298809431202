package providers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MockProvider replays a scripted sequence of raw turns. It is used in
// tests and local development where no model backend is available.
//
// Each GenerateTurn call consumes the next scripted entry. When the
// script runs out the last entry repeats, which keeps long test
// conversations from failing on length.
type MockProvider struct {
	id string

	mu     sync.Mutex
	script []ScriptedTurn
	calls  int
}

// ScriptedTurn is one replayed model output.
type ScriptedTurn struct {
	RawTurn json.RawMessage
	Err     error
	// Delay is simulated generation time, applied before returning.
	Delay time.Duration
}

// NewMockProvider creates a mock provider replaying script in order.
func NewMockProvider(id string, script ...ScriptedTurn) *MockProvider {
	return &MockProvider{id: id, script: script}
}

// ID returns the provider identifier.
func (m *MockProvider) ID() string { return m.id }

// GenerateTurn returns the next scripted turn, honoring ctx during any
// simulated delay.
func (m *MockProvider) GenerateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	if len(req.Transcript) == 0 {
		return TurnResponse{}, ErrEmptyTranscript
	}

	m.mu.Lock()
	if len(m.script) == 0 {
		m.mu.Unlock()
		return TurnResponse{}, NewProviderError(m.id, "generate", errors.New("no scripted turns"), false)
	}
	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++
	turn := m.script[idx]
	m.mu.Unlock()

	if turn.Delay > 0 {
		select {
		case <-time.After(turn.Delay):
		case <-ctx.Done():
			return TurnResponse{}, NewProviderError(m.id, "generate", ctx.Err(), false)
		}
	}

	if turn.Err != nil {
		return TurnResponse{}, turn.Err
	}
	return TurnResponse{RawTurn: turn.RawTurn, Model: "mock"}, nil
}

// Calls reports how many turns have been generated.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op.
func (m *MockProvider) Close() error { return nil }
