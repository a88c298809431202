package events

import (
	"time"

	"github.com/voicecollect/callcore/types"
)

// Type identifies the kind of event emitted during a call.
type Type string

const (
	// EventCallStarted marks a call session becoming active.
	EventCallStarted Type = "call.started"
	// EventCallOutcome marks a call ending with a classified outcome.
	EventCallOutcome Type = "call.outcome"
	// EventCallFailed marks a call torn down by a fatal error.
	EventCallFailed Type = "call.failed"

	// EventStateTransition marks an applied conversation transition.
	EventStateTransition Type = "state.transition"

	// EventTurnCompleted marks a fully processed agent turn.
	EventTurnCompleted Type = "turn.completed"

	// EventEvaluationFailed marks a model turn rejected by validation.
	EventEvaluationFailed Type = "evaluation.failed"

	// EventInterruption marks the debtor barging in over agent speech.
	EventInterruption Type = "interruption"

	// EventLatencyBreach marks a turn exceeding the response budget.
	EventLatencyBreach Type = "latency.breach"
)

// Data is a marker interface for event payloads.
type Data interface {
	eventData()
}

// Event is delivered to listeners for every call occurrence.
type Event struct {
	Type      Type
	Timestamp time.Time
	CallID    string
	Data      Data
}

type baseData struct{}

func (baseData) eventData() {}

// CallStartedData carries call.started payload.
type CallStartedData struct {
	baseData
	DebtorID string
	Stage    types.DelinquencyStage
}

// CallOutcomeData carries call.outcome payload.
type CallOutcomeData struct {
	baseData
	Outcome  types.CallOutcome
	Duration time.Duration
	Turns    uint64
}

// CallFailedData carries call.failed payload.
type CallFailedData struct {
	baseData
	Err   error
	State types.ConversationState
}

// StateTransitionData carries state.transition payload.
type StateTransitionData struct {
	baseData
	From    types.ConversationState
	To      types.ConversationState
	TurnSeq uint64
}

// TurnCompletedData carries turn.completed payload.
type TurnCompletedData struct {
	baseData
	TurnSeq  uint64
	State    types.ConversationState
	Duration time.Duration
	Reprompt bool
}

// EvaluationFailedData carries evaluation.failed payload.
type EvaluationFailedData struct {
	baseData
	TurnSeq uint64
	Rule    string
	Reason  string
}

// InterruptionData carries interruption payload.
type InterruptionData struct {
	baseData
	TurnSeq uint64
	// FlushedChunks is how many queued audio chunks were discarded.
	FlushedChunks int
	// Source is "transcript" or "energy".
	Source string
}

// LatencyBreachData carries latency.breach payload.
type LatencyBreachData struct {
	baseData
	TurnSeq   uint64
	Total     time.Duration
	Threshold time.Duration
}
