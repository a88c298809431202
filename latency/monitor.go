// Package latency tracks per-turn response time from the debtor's
// final transcript to the first audio chunk queued for playback.
package latency

import (
	"sync"
	"time"
)

// DefaultThreshold is the end-to-end turn budget. Turns slower than
// this are reported but never aborted.
const DefaultThreshold = 1500 * time.Millisecond

// Mark identifies a turn pipeline boundary.
type Mark string

const (
	// MarkTranscriptFinal is when the debtor's utterance finalized.
	MarkTranscriptFinal Mark = "transcript_final"
	// MarkModelReceived is when the model's turn payload arrived.
	MarkModelReceived Mark = "model_received"
	// MarkEvaluationPassed is when the turn cleared validation.
	MarkEvaluationPassed Mark = "evaluation_passed"
	// MarkFirstChunkEnqueued is when synthesized audio first queued.
	MarkFirstChunkEnqueued Mark = "first_chunk_enqueued"
)

// marks in pipeline order.
var markOrder = []Mark{MarkTranscriptFinal, MarkModelReceived, MarkEvaluationPassed, MarkFirstChunkEnqueued}

// Report summarizes one completed turn.
type Report struct {
	CallID  string
	TurnSeq uint64
	// Total is first chunk enqueued minus transcript final.
	Total time.Duration
	// Stages maps each boundary to its offset from transcript final.
	Stages    map[Mark]time.Duration
	Breached  bool
	Threshold time.Duration
}

// Monitor records boundary timestamps for the turns of one call.
// Reporting is fire and forget: the onBreach callback runs on the
// recording goroutine and must not block.
type Monitor struct {
	callID    string
	threshold time.Duration
	onBreach  func(Report)

	mu    sync.Mutex
	turns map[uint64]map[Mark]time.Time
}

// NewMonitor creates a monitor for one call. A zero threshold selects
// DefaultThreshold; onBreach may be nil.
func NewMonitor(callID string, threshold time.Duration, onBreach func(Report)) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{
		callID:    callID,
		threshold: threshold,
		onBreach:  onBreach,
		turns:     make(map[uint64]map[Mark]time.Time),
	}
}

// Record stamps a boundary for the given turn. Recording the same
// boundary twice keeps the first stamp.
func (m *Monitor) Record(turnSeq uint64, mark Mark) {
	m.RecordAt(turnSeq, mark, time.Now())
}

// RecordAt stamps a boundary with an explicit time.
func (m *Monitor) RecordAt(turnSeq uint64, mark Mark, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamps, ok := m.turns[turnSeq]
	if !ok {
		stamps = make(map[Mark]time.Time, len(markOrder))
		m.turns[turnSeq] = stamps
	}
	if _, dup := stamps[mark]; dup {
		return
	}
	stamps[mark] = at
}

// Finish closes out a turn and returns its report. The second return
// is false when the turn never recorded its start boundary. Breaches
// invoke the onBreach callback before returning.
func (m *Monitor) Finish(turnSeq uint64) (Report, bool) {
	m.mu.Lock()
	stamps, ok := m.turns[turnSeq]
	delete(m.turns, turnSeq)
	m.mu.Unlock()

	start, started := stamps[MarkTranscriptFinal]
	if !ok || !started {
		return Report{}, false
	}

	report := Report{
		CallID:    m.callID,
		TurnSeq:   turnSeq,
		Threshold: m.threshold,
		Stages:    make(map[Mark]time.Duration, len(stamps)),
	}
	for mark, at := range stamps {
		report.Stages[mark] = at.Sub(start)
	}
	if end, ok := stamps[MarkFirstChunkEnqueued]; ok {
		report.Total = end.Sub(start)
		report.Breached = report.Total > m.threshold
	}

	if report.Breached && m.onBreach != nil {
		m.onBreach(report)
	}
	return report, true
}
