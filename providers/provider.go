// Package providers abstracts the language models that drive the agent
// side of a collection call.
//
// A provider receives the assembled turn request (system prompt plus
// conversation transcript) and returns the model's raw structured turn
// as JSON bytes. Callers validate the payload downstream; providers do
// not interpret it.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voicecollect/callcore/types"
)

// TurnRequest is the input to a single agent turn.
type TurnRequest struct {
	System      string            `json:"system"`
	Transcript  []types.Utterance `json:"transcript"`
	Temperature float32           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

// TurnResponse carries the model output for one turn.
type TurnResponse struct {
	// RawTurn is the model's structured turn payload, unvalidated.
	RawTurn json.RawMessage `json:"raw_turn"`
	Model   string          `json:"model"`
	Latency time.Duration   `json:"latency"`
}

// Provider is the contract for turn-generating language models.
type Provider interface {
	ID() string

	// GenerateTurn produces the structured turn for the current
	// conversation. Implementations must honor ctx cancellation and
	// deadlines; the orchestrator enforces the per-turn budget through
	// the context it passes here.
	GenerateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)

	Close() error
}

// Defaults holds default generation parameters.
type Defaults struct {
	Temperature float32
	MaxTokens   int
}

// DefaultParams returns the generation parameters used when a request
// leaves them unset. Low temperature keeps the structured output stable.
func DefaultParams() Defaults {
	return Defaults{Temperature: 0.2, MaxTokens: 1024}
}
