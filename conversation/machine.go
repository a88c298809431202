// Package conversation implements the call conversation state machine.
//
// The machine holds the authoritative stage of a call and validates every
// proposed transition against a strict allow-list of edges. The LLM is
// treated as an untrusted producer: nothing it proposes mutates state
// until the edge is accepted here.
package conversation

import (
	"fmt"
	"sync"

	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/types"
)

// edges is the allow-list of legal transitions. The fatal edge from
// any state to terminated exists only through Machine.Terminate; it is
// never proposable, so the model cannot shortcut past closing and the
// field checks that gate it.
var edges = map[types.ConversationState][]types.ConversationState{
	types.StateGreeting:         {types.StateVerification, types.StateWrongNumber},
	types.StateVerification:     {types.StatePurpose, types.StateWrongNumber},
	types.StatePurpose:          {types.StateNegotiation, types.StateHardshipCallback},
	types.StateNegotiation:      {types.StateCommitment, types.StateHardshipCallback},
	types.StateCommitment:       {types.StateClosing},
	types.StateHardshipCallback: {types.StateClosing},
	types.StateClosing:          {types.StateTerminated},
}

// Allowed reports whether the edge from -> to is in the allow-list.
// Terminated is allowed only from closing; every other path to it goes
// through Terminate.
func Allowed(from, to types.ConversationState) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionRejection is the typed, non-panicking result of an illegal
// transition proposal. The orchestrator maps it to "schedule callback and
// terminate gracefully" rather than forcing the conversation along an
// incorrect path.
type TransitionRejection struct {
	From types.ConversationState
	To   types.ConversationState
}

// Error implements the error interface.
func (r *TransitionRejection) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", r.From, r.To)
}

// Machine tracks the current state of one call session. It is owned by
// that session's sequential turn-processing path; the mutex only guards
// against concurrent reads from observers.
type Machine struct {
	callID string

	mu          sync.RWMutex
	state       types.ConversationState
	appliedTurn uint64
	hasApplied  bool
}

// NewMachine creates a Machine in the initial greeting state.
func NewMachine(callID string) *Machine {
	return &Machine{
		callID: callID,
		state:  types.StateGreeting,
	}
}

// State returns the current conversation state.
func (m *Machine) State() types.ConversationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Propose checks whether moving from the current state to next is legal.
// Rejection never raises: it returns a typed *TransitionRejection.
func (m *Machine) Propose(next types.ConversationState) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !next.Valid() {
		return &TransitionRejection{From: m.state, To: next}
	}
	if !Allowed(m.state, next) {
		return &TransitionRejection{From: m.state, To: next}
	}
	return nil
}

// Apply commits a proposed transition for the given turn sequence number.
// Replaying the same turn sequence number after a committed transition is
// a no-op: the state is unchanged and no duplicate log entry is emitted.
// This lets the orchestrator retry a failed downstream step (synthesis)
// without re-asking the LLM.
func (m *Machine) Apply(turnSeq uint64, next types.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasApplied && turnSeq == m.appliedTurn {
		return nil
	}

	if !next.Valid() || !Allowed(m.state, next) {
		rej := &TransitionRejection{From: m.state, To: next}
		logger.TransitionRejected(m.callID, turnSeq, m.state.String(), next.String())
		return rej
	}

	prev := m.state
	m.state = next
	m.appliedTurn = turnSeq
	m.hasApplied = true

	logger.StateTransition(m.callID, turnSeq, prev.String(), next.String())
	return nil
}

// WindDown forces the graceful failure path: the state is driven
// through hardship_callback and then closing regardless of the
// allow-list, each hop logged like a normal transition. It returns the
// forced states in order so the caller can mirror them as events. A
// machine already in a terminal state is left untouched.
func (m *Machine) WindDown(turnSeq uint64) []types.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return nil
	}

	var path []types.ConversationState
	force := func(next types.ConversationState) {
		prev := m.state
		m.state = next
		logger.StateTransition(m.callID, turnSeq, prev.String(), next.String())
		path = append(path, next)
	}

	if m.state != types.StateHardshipCallback {
		force(types.StateHardshipCallback)
	}
	force(types.StateClosing)

	m.appliedTurn = turnSeq
	m.hasApplied = true
	return path
}

// Terminate forces the machine into the terminated state. Used on fatal
// errors and when the max turn count is exceeded. Always legal.
func (m *Machine) Terminate(turnSeq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == types.StateTerminated {
		return
	}

	prev := m.state
	m.state = types.StateTerminated
	m.appliedTurn = turnSeq
	m.hasApplied = true

	logger.StateTransition(m.callID, turnSeq, prev.String(), types.StateTerminated.String())
}
