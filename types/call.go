// Package types defines the shared domain types for the call orchestration
// core: conversation states, call sessions, transcripts, payment promises,
// and the validated LLM turn result.
package types

import (
	"time"
)

// ConversationState is the authoritative stage of a call conversation.
type ConversationState string

const (
	// StateGreeting is the initial state of every call.
	StateGreeting ConversationState = "greeting"
	// StateVerification covers debtor identity verification.
	StateVerification ConversationState = "verification"
	// StatePurpose is the disclosure of why the call is being made.
	StatePurpose ConversationState = "purpose"
	// StateNegotiation is the payment discussion phase.
	StateNegotiation ConversationState = "negotiation"
	// StateCommitment records a concrete payment commitment.
	StateCommitment ConversationState = "commitment"
	// StateClosing wraps up the conversation.
	StateClosing ConversationState = "closing"
	// StateWrongNumber terminates calls that reached the wrong person.
	StateWrongNumber ConversationState = "wrong_number"
	// StateHardshipCallback schedules a follow-up for hardship cases.
	StateHardshipCallback ConversationState = "hardship_callback"
	// StateTerminated is the final state after the call ends.
	StateTerminated ConversationState = "terminated"
)

// Valid reports whether s is a known conversation state.
func (s ConversationState) Valid() bool {
	switch s {
	case StateGreeting, StateVerification, StatePurpose, StateNegotiation,
		StateCommitment, StateClosing, StateWrongNumber,
		StateHardshipCallback, StateTerminated:
		return true
	}
	return false
}

// Terminal reports whether s ends the conversation flow.
func (s ConversationState) Terminal() bool {
	return s == StateClosing || s == StateWrongNumber || s == StateTerminated
}

// String returns the state name.
func (s ConversationState) String() string { return string(s) }

// AllStates lists every conversation state. Useful for exhaustive checks.
var AllStates = []ConversationState{
	StateGreeting, StateVerification, StatePurpose, StateNegotiation,
	StateCommitment, StateClosing, StateWrongNumber,
	StateHardshipCallback, StateTerminated,
}

// CallOutcome classifies how a call ended.
type CallOutcome string

const (
	OutcomePromisedToPay     CallOutcome = "promised_to_pay"
	OutcomePartialPromise    CallOutcome = "partial_promise"
	OutcomeDisputed          CallOutcome = "disputed"
	OutcomeHardship          CallOutcome = "hardship"
	OutcomeWrongNumber       CallOutcome = "wrong_number"
	OutcomeCallbackRequested CallOutcome = "callback_requested"
	OutcomeRefusedToPay      CallOutcome = "refused_to_pay"
	OutcomeHungUp            CallOutcome = "hung_up"
	OutcomeNoAnswer          CallOutcome = "no_answer"
	OutcomeVoicemailLeft     CallOutcome = "voicemail_left"
	OutcomeOther             CallOutcome = "other"
)

// Valid reports whether o is a known outcome classification.
func (o CallOutcome) Valid() bool {
	switch o {
	case OutcomePromisedToPay, OutcomePartialPromise, OutcomeDisputed,
		OutcomeHardship, OutcomeWrongNumber, OutcomeCallbackRequested,
		OutcomeRefusedToPay, OutcomeHungUp, OutcomeNoAnswer,
		OutcomeVoicemailLeft, OutcomeOther:
		return true
	}
	return false
}

// Sentiment is the debtor sentiment on a 1-5 scale:
// 1=hostile, 2=frustrated, 3=neutral, 4=cooperative, 5=very cooperative.
type Sentiment int

// Valid reports whether the sentiment is within the 1-5 scale.
func (s Sentiment) Valid() bool { return s >= 1 && s <= 5 }

// DelinquencyStage selects the prompt tone and goal for a call.
type DelinquencyStage string

const (
	StagePreDelinquency   DelinquencyStage = "pre_delinquency"
	StageEarlyDelinquency DelinquencyStage = "early_delinquency"
	StageLateDelinquency  DelinquencyStage = "late_delinquency"
)

// Valid reports whether d is a known delinquency stage.
func (d DelinquencyStage) Valid() bool {
	switch d {
	case StagePreDelinquency, StageEarlyDelinquency, StageLateDelinquency:
		return true
	}
	return false
}

// PaymentPromise is a structured payment commitment extracted from the
// conversation. Amounts are in cents to avoid float drift.
type PaymentPromise struct {
	AmountCents int64     `json:"amount_cents"`
	DueDate     time.Time `json:"due_date"`
	Confirmed   bool      `json:"confirmed"`
}

// Speaker identifies who produced an utterance.
type Speaker string

const (
	// SpeakerDebtor is the called party.
	SpeakerDebtor Speaker = "debtor"
	// SpeakerAgent is the synthesized voice agent.
	SpeakerAgent Speaker = "agent"
)

// Utterance is one speaker-tagged entry in the ordered call transcript.
type Utterance struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DebtorContext carries the debtor variables needed to drive a call.
// Supplied by the external scheduling collaborator at call start.
type DebtorContext struct {
	DebtorID     string `json:"debtor_id"`
	Name         string `json:"name"`
	CompanyName  string `json:"company_name"`
	AmountCents  int64  `json:"amount_cents"`
	DueDate      string `json:"due_date"`
	AccountLast4 string `json:"account_last4"`
}

// CallSession is the exclusively-owned state of one live call. It is
// mutated only by that call's sequential turn-processing path and becomes
// read-only (as a CallRecord) at termination.
type CallSession struct {
	ID        string            `json:"id"`
	Debtor    DebtorContext     `json:"debtor"`
	Stage     DelinquencyStage  `json:"stage"`
	State     ConversationState `json:"state"`
	Transcript []Utterance      `json:"transcript"`
	Promise   *PaymentPromise   `json:"promise,omitempty"`
	Outcome   CallOutcome       `json:"outcome,omitempty"`
	Sentiment Sentiment         `json:"sentiment,omitempty"`

	IdentityConfirmed bool   `json:"identity_confirmed"`
	RequestedNoCalls  bool   `json:"requested_no_calls"`
	HardshipReason    string `json:"hardship_reason,omitempty"`
	DisputeReason     string `json:"dispute_reason,omitempty"`
	Summary           string `json:"summary,omitempty"`
	ManualFollowUp    bool   `json:"manual_follow_up"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// AppendUtterance folds an utterance into the ordered transcript.
func (s *CallSession) AppendUtterance(speaker Speaker, text string, at time.Time) {
	s.Transcript = append(s.Transcript, Utterance{
		Speaker:   speaker,
		Text:      text,
		Timestamp: at,
	})
}

// Record snapshots the session into an immutable terminal record for the
// persistence/webhook collaborator.
func (s *CallSession) Record() *CallRecord {
	transcript := make([]Utterance, len(s.Transcript))
	copy(transcript, s.Transcript)

	var promise *PaymentPromise
	if s.Promise != nil {
		p := *s.Promise
		promise = &p
	}

	return &CallRecord{
		SessionID:         s.ID,
		DebtorID:          s.Debtor.DebtorID,
		Stage:             s.Stage,
		EndState:          s.State,
		Outcome:           s.Outcome,
		Sentiment:         s.Sentiment,
		Promise:           promise,
		Transcript:        transcript,
		IdentityConfirmed: s.IdentityConfirmed,
		RequestedNoCalls:  s.RequestedNoCalls,
		HardshipReason:    s.HardshipReason,
		DisputeReason:     s.DisputeReason,
		Summary:           s.Summary,
		ManualFollowUp:    s.ManualFollowUp,
		StartedAt:         s.StartedAt,
		EndedAt:           s.EndedAt,
		DurationMs:        s.EndedAt.Sub(s.StartedAt).Milliseconds(),
	}
}

// CallRecord is the read-only terminal snapshot of a completed call.
type CallRecord struct {
	SessionID         string            `json:"session_id"`
	DebtorID          string            `json:"debtor_id"`
	Stage             DelinquencyStage  `json:"stage"`
	EndState          ConversationState `json:"end_state"`
	Outcome           CallOutcome       `json:"outcome"`
	Sentiment         Sentiment         `json:"sentiment"`
	Promise           *PaymentPromise   `json:"promise,omitempty"`
	Transcript        []Utterance       `json:"transcript"`
	IdentityConfirmed bool              `json:"identity_confirmed"`
	RequestedNoCalls  bool              `json:"requested_no_calls"`
	HardshipReason    string            `json:"hardship_reason,omitempty"`
	DisputeReason     string            `json:"dispute_reason,omitempty"`
	Summary           string            `json:"summary,omitempty"`
	ManualFollowUp    bool              `json:"manual_follow_up"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           time.Time         `json:"ended_at"`
	DurationMs        int64             `json:"duration_ms"`
}
