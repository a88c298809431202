package types

import (
	"time"
)

// TranscriptEvent is one speech-to-text update for a call. Interim events
// are low-latency, lower-confidence and may be superseded; exactly one
// final event is emitted per utterance boundary.
type TranscriptEvent struct {
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	Final      bool      `json:"final"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// TurnResult is the validated outcome of one LLM turn. It is transient:
// it exists only between the provider response and the evaluator verdict
// and is never persisted unvalidated.
type TurnResult struct {
	// NextState is the state the LLM proposes to move to.
	NextState ConversationState `json:"next_state"`

	// Outcome is the extracted outcome classification, if reached.
	Outcome CallOutcome `json:"outcome,omitempty"`

	// Promise is the extracted payment promise, nil when none was made.
	Promise *PaymentPromise `json:"promise,omitempty"`

	// Sentiment is the debtor sentiment on the 1-5 scale.
	Sentiment Sentiment `json:"sentiment"`

	// IdentityConfirmed reports whether the debtor verified their identity.
	IdentityConfirmed bool `json:"identity_confirmed"`

	// RequestedNoCalls reports an opt-out request.
	RequestedNoCalls bool `json:"requested_no_calls"`

	// HardshipReason is set when the debtor claims financial hardship.
	HardshipReason string `json:"hardship_reason,omitempty"`

	// DisputeReason is set when the debtor disputes the debt.
	DisputeReason string `json:"dispute_reason,omitempty"`

	// Summary is a short call summary, required by closing.
	Summary string `json:"summary,omitempty"`

	// Reply is the raw text to synthesize back to the debtor.
	Reply string `json:"reply"`
}

// AudioFrame is an opaque timestamped audio chunk. Ownership transfers
// from the transport on arrival and back to the transport on send; no
// frame is retained after forwarding.
type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
	Inbound   bool
}
