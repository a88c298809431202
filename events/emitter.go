package events

import (
	"time"

	"github.com/voicecollect/callcore/types"
)

// Emitter publishes call events with the call's shared metadata. A nil
// Emitter or nil bus is safe: every method becomes a no-op, so callers
// never guard emission sites.
type Emitter struct {
	bus    *Bus
	callID string
}

// NewEmitter creates an emitter bound to one call.
func NewEmitter(bus *Bus, callID string) *Emitter {
	return &Emitter{bus: bus, callID: callID}
}

func (e *Emitter) emit(eventType Type, data Data) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		CallID:    e.callID,
		Data:      data,
	})
}

// CallStarted emits the call.started event.
func (e *Emitter) CallStarted(debtorID string, stage types.DelinquencyStage) {
	e.emit(EventCallStarted, CallStartedData{DebtorID: debtorID, Stage: stage})
}

// CallOutcome emits the call.outcome event.
func (e *Emitter) CallOutcome(outcome types.CallOutcome, duration time.Duration, turns uint64) {
	e.emit(EventCallOutcome, CallOutcomeData{Outcome: outcome, Duration: duration, Turns: turns})
}

// CallFailed emits the call.failed event.
func (e *Emitter) CallFailed(err error, state types.ConversationState) {
	e.emit(EventCallFailed, CallFailedData{Err: err, State: state})
}

// StateTransition emits the state.transition event.
func (e *Emitter) StateTransition(from, to types.ConversationState, turnSeq uint64) {
	e.emit(EventStateTransition, StateTransitionData{From: from, To: to, TurnSeq: turnSeq})
}

// TurnCompleted emits the turn.completed event.
func (e *Emitter) TurnCompleted(turnSeq uint64, state types.ConversationState, duration time.Duration, reprompt bool) {
	e.emit(EventTurnCompleted, TurnCompletedData{
		TurnSeq:  turnSeq,
		State:    state,
		Duration: duration,
		Reprompt: reprompt,
	})
}

// EvaluationFailed emits the evaluation.failed event.
func (e *Emitter) EvaluationFailed(turnSeq uint64, rule, reason string) {
	e.emit(EventEvaluationFailed, EvaluationFailedData{TurnSeq: turnSeq, Rule: rule, Reason: reason})
}

// Interruption emits the interruption event.
func (e *Emitter) Interruption(turnSeq uint64, flushedChunks int, source string) {
	e.emit(EventInterruption, InterruptionData{
		TurnSeq:       turnSeq,
		FlushedChunks: flushedChunks,
		Source:        source,
	})
}

// LatencyBreach emits the latency.breach event.
func (e *Emitter) LatencyBreach(turnSeq uint64, total, threshold time.Duration) {
	e.emit(EventLatencyBreach, LatencyBreachData{TurnSeq: turnSeq, Total: total, Threshold: threshold})
}
