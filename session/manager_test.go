package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicecollect/callcore/audio"
	"github.com/voicecollect/callcore/config"
	"github.com/voicecollect/callcore/events"
	"github.com/voicecollect/callcore/providers"
	"github.com/voicecollect/callcore/types"
)

func managerRequest(t *testing.T, sessionID string) (StartCallRequest, *mockTranscriber) {
	t.Helper()
	transcriber := newMockTranscriber()
	audioSess := audio.NewSession(mockSink{}, audio.SessionConfig{CallID: sessionID})
	t.Cleanup(func() { _ = audioSess.Close() })

	return StartCallRequest{
		SessionID: sessionID,
		Debtor: types.DebtorContext{
			DebtorID:    "d-1",
			Name:        "Jordan Lee",
			CompanyName: "Meridian Finance",
			AmountCents: 150050,
		},
		Stage:       types.StageEarlyDelinquency,
		Transcriber: transcriber,
		Synthesizer: &mockSynth{},
		Audio:       audioSess,
	}, transcriber
}

func TestManager_StartCallGeneratesSessionID(t *testing.T) {
	provider := providers.NewMockProvider("mock",
		turnJSON(t, map[string]any{
			"next_state": "wrong_number",
			"outcome":    "wrong_number",
		}),
	)
	recorder := &mockRecorder{}
	mgr, err := NewManager(provider, recorder, events.NewBus(), ManagerConfig{})
	require.NoError(t, err)

	req, transcriber := managerRequest(t, "")
	id, err := mgr.StartCall(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, mgr.ActiveSessions())

	transcriber.debtorFinal("Wrong number, sorry.")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	assert.Equal(t, 0, mgr.ActiveSessions())
	record := recorder.last(t)
	assert.Equal(t, id, record.SessionID)
	assert.Equal(t, types.OutcomeWrongNumber, record.Outcome)
}

func TestManager_DuplicateSessionIDRejected(t *testing.T) {
	provider := providers.NewMockProvider("mock")
	mgr, err := NewManager(provider, &mockRecorder{}, events.NewBus(), ManagerConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, _ := managerRequest(t, "call-dup")
	_, err = mgr.StartCall(ctx, first)
	require.NoError(t, err)

	second, _ := managerRequest(t, "call-dup")
	_, err = mgr.StartCall(ctx, second)
	assert.ErrorIs(t, err, ErrSessionActive)

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, mgr.Shutdown(shutdownCtx))
}

func TestManagerConfigFrom(t *testing.T) {
	cfg, err := config.Parse([]byte(`
provider:
  model: gpt-4o-mini
stt:
  url: wss://stt.example.com/v1
tts:
  url: wss://tts.example.com/v1
  voice: nova
  speed: 1.2
session:
  turn_timeout: 2s
  latency_threshold: 1s
  max_concurrent_turns: 8
`))
	require.NoError(t, err)

	got := ManagerConfigFrom(cfg)
	assert.Equal(t, int64(8), got.MaxConcurrentTurns)
	assert.Equal(t, 2*time.Second, got.Turn.TurnTimeout)
	assert.Equal(t, time.Second, got.Turn.LatencyThreshold)
	assert.Equal(t, "nova", got.Turn.Synthesis.Voice)
	assert.Equal(t, 1.2, got.Turn.Synthesis.Speed)
}

func TestNewManagerFromConfigRateLimitsProvider(t *testing.T) {
	cfg, err := config.Parse([]byte(`
provider:
  model: gpt-4o-mini
  rps: 2
  burst: 1
stt:
  url: wss://stt.example.com/v1
tts:
  url: wss://tts.example.com/v1
`))
	require.NoError(t, err)

	base := providers.NewMockProvider("mock",
		turnJSON(t, map[string]any{"next_state": "verification"}),
	)
	mgr, err := NewManagerFromConfig(base, &mockRecorder{}, events.NewBus(), cfg)
	require.NoError(t, err)

	// The configured quota wraps the base provider on the session path.
	limited, ok := mgr.provider.(*providers.RateLimited)
	require.True(t, ok, "provider is %T, want *providers.RateLimited", mgr.provider)
	assert.Equal(t, "mock", limited.ID())

	// burst 1 admits the first call immediately; rps 2 makes the second
	// wait about half a second.
	ctx := context.Background()
	transcript := []types.Utterance{{Speaker: types.SpeakerDebtor, Text: "Hello?", Timestamp: time.Now()}}
	start := time.Now()
	_, err = limited.GenerateTurn(ctx, providers.TurnRequest{Transcript: transcript})
	require.NoError(t, err)
	_, err = limited.GenerateTurn(ctx, providers.TurnRequest{Transcript: transcript})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

// gaugeProvider records peak concurrent GenerateTurn calls.
type gaugeProvider struct {
	mu      sync.Mutex
	inUse   int
	maxSeen int
	turn    []byte
}

func (g *gaugeProvider) ID() string { return "gauge" }

func (g *gaugeProvider) GenerateTurn(ctx context.Context, req providers.TurnRequest) (providers.TurnResponse, error) {
	g.mu.Lock()
	g.inUse++
	if g.inUse > g.maxSeen {
		g.maxSeen = g.inUse
	}
	g.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	g.mu.Lock()
	g.inUse--
	g.mu.Unlock()
	return providers.TurnResponse{RawTurn: g.turn}, nil
}

func (g *gaugeProvider) Close() error { return nil }

func (g *gaugeProvider) peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxSeen
}

func TestManager_BoundsConcurrentModelCalls(t *testing.T) {
	provider := &gaugeProvider{
		turn: turnJSON(t, map[string]any{
			"next_state": "wrong_number",
			"outcome":    "wrong_number",
		}).RawTurn,
	}
	recorder := &mockRecorder{}
	mgr, err := NewManager(provider, recorder, events.NewBus(), ManagerConfig{MaxConcurrentTurns: 1})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		req, transcriber := managerRequest(t, fmt.Sprintf("call-%d", i))
		_, err := mgr.StartCall(context.Background(), req)
		require.NoError(t, err)
		transcriber.debtorFinal("Wrong number.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	if got := provider.peak(); got != 1 {
		t.Errorf("peak concurrent model calls = %d, want 1", got)
	}
}

func TestManager_RejectsCallsAfterShutdown(t *testing.T) {
	provider := providers.NewMockProvider("mock")
	mgr, err := NewManager(provider, &mockRecorder{}, events.NewBus(), ManagerConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	req, _ := managerRequest(t, "late-call")
	_, err = mgr.StartCall(context.Background(), req)
	assert.ErrorIs(t, err, ErrManagerClosed)
}
