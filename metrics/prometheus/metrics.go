// Package prometheus provides Prometheus metrics for call sessions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callcore"

var (
	// turnStageDuration is a histogram of per-stage turn latency in
	// seconds, from the debtor's final transcript.
	turnStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_duration_seconds",
			Help:      "Duration of turn pipeline stages in seconds",
			Buckets:   []float64{.05, .1, .25, .5, .75, 1, 1.5, 2.5, 5},
		},
		[]string{"stage"},
	)

	// turnsTotal counts processed agent turns.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of agent turns processed",
		},
		[]string{"status"}, // status: success, reprompted, error
	)

	// evaluationFailuresTotal counts rejected model turns by rule.
	evaluationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Total model turns rejected by validation",
		},
		[]string{"rule"},
	)

	// interruptionsTotal counts debtor barge-ins by trigger source.
	interruptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Total debtor interruptions of agent speech",
		},
		[]string{"source"}, // source: transcript, energy
	)

	// latencyBreachesTotal counts turns over the response budget.
	latencyBreachesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latency_breaches_total",
			Help:      "Total turns exceeding the response time budget",
		},
	)

	// callOutcomesTotal counts completed calls by outcome.
	callOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_outcomes_total",
			Help:      "Total completed calls by outcome",
		},
		[]string{"outcome"},
	)

	// callDuration is a histogram of full call duration in seconds.
	callDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Histogram of full call duration in seconds",
			Buckets:   []float64{15, 30, 60, 120, 180, 300, 600, 900},
		},
	)

	// sessionsActive is a gauge of currently active call sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active call sessions",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		turnStageDuration,
		turnsTotal,
		evaluationFailuresTotal,
		interruptionsTotal,
		latencyBreachesTotal,
		callOutcomesTotal,
		callDuration,
		sessionsActive,
	}
)

// RecordTurnStage records one turn pipeline stage duration.
func RecordTurnStage(stage string, durationSeconds float64) {
	turnStageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordTurn records a processed turn.
func RecordTurn(status string) {
	turnsTotal.WithLabelValues(status).Inc()
}

// RecordEvaluationFailure records a rejected model turn.
func RecordEvaluationFailure(rule string) {
	evaluationFailuresTotal.WithLabelValues(rule).Inc()
}

// RecordInterruption records a debtor barge-in.
func RecordInterruption(source string) {
	interruptionsTotal.WithLabelValues(source).Inc()
}

// RecordLatencyBreach records a turn over the response budget.
func RecordLatencyBreach() {
	latencyBreachesTotal.Inc()
}

// RecordCallStart records a session becoming active.
func RecordCallStart() {
	sessionsActive.Inc()
}

// RecordCallEnd records a completed call with its outcome.
func RecordCallEnd(outcome string, durationSeconds float64) {
	sessionsActive.Dec()
	callOutcomesTotal.WithLabelValues(outcome).Inc()
	callDuration.Observe(durationSeconds)
}
