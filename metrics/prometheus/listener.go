package prometheus

import (
	"github.com/voicecollect/callcore/events"
)

// Listener records call events as Prometheus metrics. Register it with
// a bus using SubscribeAll.
type Listener struct{}

// NewListener creates a metrics listener.
func NewListener() *Listener {
	return &Listener{}
}

// Handle processes an event and records relevant metrics.
func (l *Listener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventCallStarted:
		RecordCallStart()
	case events.EventCallOutcome:
		if data, ok := event.Data.(events.CallOutcomeData); ok {
			RecordCallEnd(string(data.Outcome), data.Duration.Seconds())
		}
	case events.EventCallFailed:
		RecordCallEnd("failed", 0)
	case events.EventTurnCompleted:
		if data, ok := event.Data.(events.TurnCompletedData); ok {
			status := "success"
			if data.Reprompt {
				status = "reprompted"
			}
			RecordTurn(status)
			RecordTurnStage("total", data.Duration.Seconds())
		}
	case events.EventEvaluationFailed:
		if data, ok := event.Data.(events.EvaluationFailedData); ok {
			RecordEvaluationFailure(data.Rule)
		}
	case events.EventInterruption:
		if data, ok := event.Data.(events.InterruptionData); ok {
			RecordInterruption(data.Source)
		}
	case events.EventLatencyBreach:
		RecordLatencyBreach()
	default:
		// Events without metrics are ignored.
	}
}
