package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voicecollect/callcore/events"
)

// callState tracks the root span for one call.
type callState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent turn spans
}

// EventListener converts call events into OTel spans in real time.
// Each call gets a root span; completed turns become child spans with
// their true start and end times, and notable occurrences (rejected
// evaluations, interruptions, latency breaches) become span events on
// the root. Safe for concurrent use.
type EventListener struct {
	tracer trace.Tracer

	mu    sync.Mutex
	calls map[string]*callState
}

// NewEventListener creates a listener producing spans from call events.
func NewEventListener(tracer trace.Tracer) *EventListener {
	return &EventListener{
		tracer: tracer,
		calls:  make(map[string]*callState),
	}
}

// OnEvent handles a single call event. It can be passed to
// Bus.SubscribeAll.
func (l *EventListener) OnEvent(evt *events.Event) {
	switch evt.Type {
	case events.EventCallStarted:
		l.startCall(evt)
	case events.EventCallOutcome:
		l.endCall(evt, "")
	case events.EventCallFailed:
		if data, ok := evt.Data.(events.CallFailedData); ok && data.Err != nil {
			l.endCall(evt, data.Err.Error())
		} else {
			l.endCall(evt, "call failed")
		}
	case events.EventTurnCompleted:
		l.recordTurn(evt)
	case events.EventEvaluationFailed:
		if data, ok := evt.Data.(events.EvaluationFailedData); ok {
			l.addCallEvent(evt.CallID, "evaluation.failed",
				attribute.Int64("turn.seq", int64(data.TurnSeq)),
				attribute.String("rule", data.Rule),
				attribute.String("reason", data.Reason),
			)
		}
	case events.EventInterruption:
		if data, ok := evt.Data.(events.InterruptionData); ok {
			l.addCallEvent(evt.CallID, "interruption",
				attribute.Int64("turn.seq", int64(data.TurnSeq)),
				attribute.Int("flushed_chunks", data.FlushedChunks),
				attribute.String("source", data.Source),
			)
		}
	case events.EventLatencyBreach:
		if data, ok := evt.Data.(events.LatencyBreachData); ok {
			l.addCallEvent(evt.CallID, "latency.breach",
				attribute.Int64("turn.seq", int64(data.TurnSeq)),
				attribute.Int64("total_ms", data.Total.Milliseconds()),
			)
		}
	default:
		// Events without spans are ignored.
	}
}

func (l *EventListener) startCall(evt *events.Event) {
	attrs := []attribute.KeyValue{attribute.String("call.id", evt.CallID)}
	if data, ok := evt.Data.(events.CallStartedData); ok {
		attrs = append(attrs,
			attribute.String("debtor.id", data.DebtorID),
			attribute.String("delinquency.stage", string(data.Stage)),
		)
	}

	ctx, span := l.tracer.Start(context.Background(), "callcore.call",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(attrs...),
	)

	l.mu.Lock()
	l.calls[evt.CallID] = &callState{span: span, ctx: ctx}
	l.mu.Unlock()
}

func (l *EventListener) endCall(evt *events.Event, errMsg string) {
	l.mu.Lock()
	cs, ok := l.calls[evt.CallID]
	if ok {
		delete(l.calls, evt.CallID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}

	if data, isOutcome := evt.Data.(events.CallOutcomeData); isOutcome {
		cs.span.SetAttributes(
			attribute.String("call.outcome", string(data.Outcome)),
			attribute.Int64("call.turns", int64(data.Turns)),
		)
	}
	if errMsg != "" {
		cs.span.SetStatus(codes.Error, errMsg)
	}
	cs.span.End(trace.WithTimestamp(evt.Timestamp))
}

// recordTurn emits a child span for a completed turn using its true
// start and end times.
func (l *EventListener) recordTurn(evt *events.Event) {
	data, ok := evt.Data.(events.TurnCompletedData)
	if !ok {
		return
	}

	l.mu.Lock()
	cs, found := l.calls[evt.CallID]
	l.mu.Unlock()

	parent := context.Background()
	if found {
		parent = cs.ctx
	}

	_, span := l.tracer.Start(parent, "callcore.turn",
		trace.WithTimestamp(evt.Timestamp.Add(-data.Duration)),
		trace.WithAttributes(
			attribute.Int64("turn.seq", int64(data.TurnSeq)),
			attribute.String("conversation.state", string(data.State)),
			attribute.Bool("turn.reprompted", data.Reprompt),
		),
	)
	span.End(trace.WithTimestamp(evt.Timestamp))
}

func (l *EventListener) addCallEvent(callID, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	cs, ok := l.calls[callID]
	l.mu.Unlock()
	if !ok {
		return
	}
	cs.span.AddEvent(name, trace.WithAttributes(attrs...))
}
