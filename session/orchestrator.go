// Package session drives the conversation loop of live collection
// calls. The Orchestrator owns one call from first audio frame to
// termination; the Manager runs many orchestrators concurrently while
// bounding shared provider resources.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voicecollect/callcore/audio"
	"github.com/voicecollect/callcore/conversation"
	"github.com/voicecollect/callcore/evaluator"
	"github.com/voicecollect/callcore/events"
	"github.com/voicecollect/callcore/latency"
	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/prompt"
	"github.com/voicecollect/callcore/providers"
	"github.com/voicecollect/callcore/stt"
	"github.com/voicecollect/callcore/tts"
	"github.com/voicecollect/callcore/types"
)

// Orchestrator timeouts and bounds.
const (
	// DefaultTurnTimeout bounds one model call. On timeout the turn is
	// never retried; the call winds down through hardship_callback.
	DefaultTurnTimeout = 3 * time.Second

	// DefaultMaxTurns forces termination of runaway conversations.
	DefaultMaxTurns = 50

	// persistTimeout bounds the terminal record write.
	persistTimeout = 5 * time.Second
)

// closingApology is spoken when the call is wound down by an internal
// failure, so the debtor is never left in dead air.
const closingApology = "I'm sorry, I'm having some trouble on my end. We'll follow up with you shortly. Thank you for your time."

// Config tunes one orchestrator.
type Config struct {
	TurnTimeout time.Duration
	MaxTurns    uint64
	Synthesis   tts.SynthesisConfig
	// LatencyThreshold is the end-to-end turn reporting budget.
	LatencyThreshold time.Duration
	// CallDate anchors promise date validation. Zero means the session
	// start time.
	CallDate time.Time
}

func (c *Config) defaults() {
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.Synthesis.Format == "" {
		c.Synthesis = tts.DefaultSynthesisConfig()
	}
}

// Dependencies are the collaborators of one call session.
type Dependencies struct {
	Provider    providers.Provider
	Evaluator   *evaluator.Evaluator
	Transcriber stt.Service
	Synthesizer tts.Service
	Audio       *audio.Session
	Interrupt   *audio.Controller
	Emitter     *events.Emitter
	Records     Recorder
	// LLMSlots bounds in-flight model calls across sessions. Nil means
	// unbounded.
	LLMSlots *semaphore.Weighted
}

// Recorder receives the terminal call record. Satisfied by store.Store.
type Recorder interface {
	Save(ctx context.Context, record *types.CallRecord) error
}

// Orchestrator drives one call's loop: final transcript in, model turn,
// deterministic evaluation, state transition, synthesized reply out.
// Exactly one turn is in flight at a time; inbound audio and interim
// transcript monitoring run concurrently and may interrupt mid-turn.
type Orchestrator struct {
	call    *types.CallSession
	machine *conversation.Machine
	deps    Dependencies
	cfg     Config
	monitor *latency.Monitor

	turnSeq      atomic.Uint64
	systemPrompt string
	finished     bool
}

// NewOrchestrator creates the orchestrator for one connected call.
// The stage-variant system prompt is rendered once up front; a render
// failure is a configuration error and surfaces immediately.
func NewOrchestrator(call *types.CallSession, machine *conversation.Machine, deps Dependencies, cfg Config) (*Orchestrator, error) {
	cfg.defaults()
	if cfg.CallDate.IsZero() {
		cfg.CallDate = call.StartedAt
	}

	system, err := prompt.System(call.Stage, call.Debtor)
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	o := &Orchestrator{
		call:         call,
		machine:      machine,
		deps:         deps,
		cfg:          cfg,
		systemPrompt: system,
	}
	o.monitor = latency.NewMonitor(call.ID, cfg.LatencyThreshold, o.onLatencyBreach)

	if deps.Interrupt != nil {
		deps.Interrupt.OnTrigger(func(flushed int) {
			deps.Emitter.Interruption(o.turnSeq.Load(), flushed, "transcript")
		})
	}
	return o, nil
}

// Run processes the call until termination. It blocks for the life of
// the call and always returns with the session in a terminal state and
// the record handed off. A panic anywhere in the loop is recovered into
// a FatalSessionError; nothing escapes across session boundaries.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fatal := &FatalSessionError{
				CallID: o.call.ID,
				Reason: "panic in session loop",
				Err:    fmt.Errorf("%v", r),
			}
			logger.Error("session panic recovered", "call_id", o.call.ID, "panic", r)
			o.fail(fatal)
			err = fatal
		}
	}()

	o.deps.Emitter.CallStarted(o.call.Debtor.DebtorID, o.call.Stage)
	logger.Info("call session started",
		"call_id", o.call.ID,
		"debtor_id", o.call.Debtor.DebtorID,
		"stage", string(o.call.Stage))

	// Interim events must keep flowing while a turn holds this loop;
	// a router goroutine feeds them to the interruption controller the
	// moment they arrive, so a barge-in fires even while speak is
	// draining a synthesis stream. Finals queue for the sequential
	// turn path below.
	finals := make(chan types.TranscriptEvent, 16)
	stop := make(chan struct{})
	defer close(stop)
	go o.routeTranscripts(ctx, stop, finals)

	for {
		select {
		case <-ctx.Done():
			fatal := &FatalSessionError{CallID: o.call.ID, Reason: "session context cancelled", Err: ctx.Err()}
			o.fail(fatal)
			return fatal

		case <-o.deps.Transcriber.Done():
			fatal := &FatalSessionError{CallID: o.call.ID, Reason: "transcription stream lost", Err: o.deps.Transcriber.Err()}
			o.fail(fatal)
			return fatal

		case ev := <-finals:
			o.handleTurn(ctx, ev)
			if o.finished {
				return nil
			}
		}
	}
}

// routeTranscripts splits the transcript stream: interims go straight
// to the interruption controller, finals queue for the turn loop. It
// runs until the stream closes or the session ends.
func (o *Orchestrator) routeTranscripts(ctx context.Context, stop <-chan struct{}, finals chan<- types.TranscriptEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case ev, ok := <-o.deps.Transcriber.Events():
			if !ok {
				return // Done fires in the turn loop
			}
			if !ev.Final {
				o.deps.Interrupt.OnInterim(ctx, ev)
				continue
			}
			select {
			case finals <- ev:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleTurn is the sequential turn critical section: transcript final
// through model, evaluator, state machine, and synthesis. Every exit
// leaves the call in a consistent state; internal failures wind the
// call down instead of crashing it.
func (o *Orchestrator) handleTurn(ctx context.Context, ev types.TranscriptEvent) {
	seq := o.turnSeq.Add(1)
	start := time.Now()
	o.monitor.RecordAt(seq, latency.MarkTranscriptFinal, start)

	if seq > o.cfg.MaxTurns {
		logger.Warn("max turn count exceeded", "call_id", o.call.ID, "turn_seq", seq)
		o.windDown(ctx, seq, types.OutcomeOther, false)
		return
	}

	// A final while agent audio is still queued means the barge-in was
	// missed by the interim path. Flush before responding so the two
	// never talk over each other.
	if o.deps.Audio.Speaking() && !o.deps.Interrupt.Triggered() {
		o.deps.Audio.Flush(ctx)
		o.deps.Synthesizer.CancelSynthesis()
	}

	o.call.AppendUtterance(types.SpeakerDebtor, ev.Text, ev.Timestamp)

	result, reprompted, failed := o.generateValidTurn(ctx, seq)
	if failed {
		o.windDown(ctx, seq, types.OutcomeOther, true)
		return
	}
	if result == nil {
		// Two consecutive evaluation failures: forced graceful closing.
		o.windDown(ctx, seq, types.OutcomeOther, false)
		return
	}

	if err := o.machine.Apply(seq, result.NextState); err != nil {
		// The evaluator checked legality moments ago; a rejection here
		// means the model raced its own proposal. Same forced path.
		o.windDown(ctx, seq, types.OutcomeOther, false)
		return
	}
	o.monitor.Record(seq, latency.MarkEvaluationPassed)
	o.applyResult(result)
	o.deps.Emitter.StateTransition(o.call.State, result.NextState, seq)
	o.call.State = result.NextState

	o.speak(ctx, seq, result.Reply)

	o.monitor.Finish(seq)
	o.deps.Emitter.TurnCompleted(seq, o.call.State, time.Since(start), reprompted)

	switch o.call.State {
	case types.StateWrongNumber:
		o.terminate(seq, types.OutcomeWrongNumber)
	case types.StateClosing, types.StateTerminated:
		o.terminate(seq, o.call.Outcome)
	}
}

// generateValidTurn runs the model plus evaluator with one re-prompt.
// Returns (nil, _, true) on provider timeout/failure and (nil, _, false)
// after two consecutive evaluation failures.
func (o *Orchestrator) generateValidTurn(ctx context.Context, seq uint64) (*types.TurnResult, bool, bool) {
	raw, err := o.generate(ctx, o.systemPrompt)
	if err != nil {
		logger.ProviderError(o.deps.Provider.ID(), "turn generation", err, "call_id", o.call.ID, "turn_seq", seq)
		return nil, false, true
	}
	o.monitor.Record(seq, latency.MarkModelReceived)

	result, evalErr := o.deps.Evaluator.Evaluate(raw, o.machine, o.cfg.CallDate, o.call.IdentityConfirmed)
	if evalErr == nil {
		return result, false, false
	}
	o.reportEvaluationFailure(seq, evalErr)

	// One re-prompt with the failure reason appended. A second
	// interruption during the re-prompt is handled exactly like any
	// other: the controller is re-armed before each utterance.
	raw, err = o.generate(ctx, o.systemPrompt+"\n\n"+prompt.Reprompt(evalErr.Error()))
	if err != nil {
		logger.ProviderError(o.deps.Provider.ID(), "re-prompt generation", err, "call_id", o.call.ID, "turn_seq", seq)
		return nil, true, true
	}

	result, evalErr = o.deps.Evaluator.Evaluate(raw, o.machine, o.cfg.CallDate, o.call.IdentityConfirmed)
	if evalErr == nil {
		return result, true, false
	}
	o.reportEvaluationFailure(seq, evalErr)
	return nil, true, false
}

// generate performs one bounded model call under the shared slot limit.
func (o *Orchestrator) generate(ctx context.Context, system string) ([]byte, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	if o.deps.LLMSlots != nil {
		if err := o.deps.LLMSlots.Acquire(genCtx, 1); err != nil {
			return nil, err
		}
		defer o.deps.LLMSlots.Release(1)
	}

	resp, err := o.deps.Provider.GenerateTurn(genCtx, providers.TurnRequest{
		System:     system,
		Transcript: o.call.Transcript,
	})
	if err != nil {
		return nil, err
	}
	return resp.RawTurn, nil
}

func (o *Orchestrator) reportEvaluationFailure(seq uint64, evalErr error) {
	rule := "unknown"
	var ee *evaluator.EvaluationError
	if errors.As(evalErr, &ee) {
		rule = string(ee.Rule)
	}
	logger.EvaluationFailed(o.call.ID, seq, rule, evalErr.Error())
	o.deps.Emitter.EvaluationFailed(seq, rule, evalErr.Error())
}

// applyResult folds an accepted turn into the session record.
func (o *Orchestrator) applyResult(result *types.TurnResult) {
	if result.Outcome != "" {
		o.call.Outcome = result.Outcome
	}
	if result.Promise != nil {
		p := *result.Promise
		o.call.Promise = &p
	}
	// A promise is confirmed once the debtor carries it into commitment.
	if result.NextState == types.StateCommitment && o.call.Promise != nil {
		o.call.Promise.Confirmed = true
	}
	if result.Sentiment != 0 {
		o.call.Sentiment = result.Sentiment
	}
	if result.IdentityConfirmed {
		o.call.IdentityConfirmed = true
	}
	if result.RequestedNoCalls {
		o.call.RequestedNoCalls = true
	}
	if result.HardshipReason != "" {
		o.call.HardshipReason = result.HardshipReason
	}
	if result.DisputeReason != "" {
		o.call.DisputeReason = result.DisputeReason
	}
	if result.Summary != "" {
		o.call.Summary = result.Summary
	}
	o.call.AppendUtterance(types.SpeakerAgent, result.Reply, time.Now())
}

// speak streams synthesized audio into the playback queue. The
// interruption controller is re-armed first; if the debtor barges in,
// the drain stops immediately and the cancelled stream unwinds on its
// own.
func (o *Orchestrator) speak(ctx context.Context, seq uint64, text string) {
	if text == "" {
		return
	}
	o.deps.Interrupt.Reset()

	chunks, err := o.deps.Synthesizer.SynthesizeStream(ctx, text, o.cfg.Synthesis)
	if err != nil {
		logger.ProviderError(o.deps.Synthesizer.Name(), "synthesis", err, "call_id", o.call.ID, "turn_seq", seq)
		return
	}

	first := true
	for chunk := range chunks {
		if o.deps.Interrupt.Triggered() {
			break
		}
		if chunk.Error != nil {
			logger.ProviderError(o.deps.Synthesizer.Name(), "synthesis stream", chunk.Error, "call_id", o.call.ID, "turn_seq", seq)
			break
		}
		if chunk.Final {
			o.deps.Audio.CompleteUtterance()
			break
		}
		if err := o.deps.Audio.EnqueueOutbound(chunk.Data); err != nil {
			break
		}
		if first {
			o.monitor.Record(seq, latency.MarkFirstChunkEnqueued)
			first = false
		}
	}
	// Drain any remainder so the synthesizer's goroutine never blocks.
	go func() {
		for range chunks {
		}
	}()
}

// windDown forces the graceful failure path: the machine is driven
// through hardship_callback and closing no matter where the call stood,
// an apology is spoken, and the session terminates. Used for provider
// timeouts, repeated evaluation failures, and illegal transitions.
func (o *Orchestrator) windDown(ctx context.Context, seq uint64, outcome types.CallOutcome, manualFollowUp bool) {
	if manualFollowUp {
		o.call.ManualFollowUp = true
	}

	for _, next := range o.machine.WindDown(seq) {
		o.deps.Emitter.StateTransition(o.call.State, next, seq)
		o.call.State = next
	}

	o.speak(ctx, seq, closingApology)

	if o.call.Outcome == "" {
		o.call.Outcome = outcome
	}
	o.terminate(seq, o.call.Outcome)
}

// terminate moves the machine to terminated, emits the terminal event,
// and hands the read-only record to the persistence collaborator.
func (o *Orchestrator) terminate(seq uint64, outcome types.CallOutcome) {
	if o.finished {
		return
	}
	o.finished = true

	o.machine.Terminate(seq)
	o.call.State = types.StateTerminated
	if outcome == "" {
		outcome = types.OutcomeOther
	}
	o.call.Outcome = outcome
	o.call.EndedAt = time.Now()

	duration := o.call.EndedAt.Sub(o.call.StartedAt)
	o.deps.Emitter.CallOutcome(outcome, duration, o.turnSeq.Load())
	logger.Info("call terminated",
		"call_id", o.call.ID,
		"outcome", string(outcome),
		"turns", o.turnSeq.Load(),
		"duration_ms", duration.Milliseconds(),
		"manual_follow_up", o.call.ManualFollowUp)

	o.persist()
}

// fail tears the session down on a fatal error, still emitting
// CallFailed and persisting whatever transcript exists.
func (o *Orchestrator) fail(fatal *FatalSessionError) {
	if o.finished {
		return
	}
	o.finished = true

	seq := o.turnSeq.Load()
	o.machine.Terminate(seq)
	o.deps.Emitter.CallFailed(fatal, o.call.State)

	o.call.State = types.StateTerminated
	if o.call.Outcome == "" {
		o.call.Outcome = types.OutcomeOther
	}
	o.call.ManualFollowUp = true
	o.call.EndedAt = time.Now()
	o.persist()
}

func (o *Orchestrator) persist() {
	if o.deps.Records == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := o.deps.Records.Save(ctx, o.call.Record()); err != nil {
		logger.Error("call record save failed", "call_id", o.call.ID, "error", err)
	}
}

func (o *Orchestrator) onLatencyBreach(report latency.Report) {
	stages := make(map[string]time.Duration, len(report.Stages))
	for mark, d := range report.Stages {
		stages[string(mark)] = d
	}
	logger.LatencyBreach(o.call.ID, report.TurnSeq, report.Total, stages)
	o.deps.Emitter.LatencyBreach(report.TurnSeq, report.Total, report.Threshold)
}
