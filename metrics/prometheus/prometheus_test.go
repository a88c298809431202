package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/voicecollect/callcore/events"
	"github.com/voicecollect/callcore/types"
)

func TestRecordTurn(t *testing.T) {
	turnsTotal.Reset()

	RecordTurn("success")
	RecordTurn("success")
	RecordTurn("reprompted")

	success := testutil.ToFloat64(turnsTotal.WithLabelValues("success"))
	reprompted := testutil.ToFloat64(turnsTotal.WithLabelValues("reprompted"))

	if success != 2 {
		t.Errorf("Expected 2 success turns, got %f", success)
	}
	if reprompted != 1 {
		t.Errorf("Expected 1 reprompted turn, got %f", reprompted)
	}
}

func TestRecordCallStartEnd(t *testing.T) {
	sessionsActive.Set(0)
	callOutcomesTotal.Reset()

	RecordCallStart()
	RecordCallStart()
	if active := testutil.ToFloat64(sessionsActive); active != 2 {
		t.Errorf("Expected 2 active sessions, got %f", active)
	}

	RecordCallEnd("promised_to_pay", 120)
	if active := testutil.ToFloat64(sessionsActive); active != 1 {
		t.Errorf("Expected 1 active session after end, got %f", active)
	}

	promised := testutil.ToFloat64(callOutcomesTotal.WithLabelValues("promised_to_pay"))
	if promised != 1 {
		t.Errorf("Expected 1 promised_to_pay outcome, got %f", promised)
	}
}

func TestRecordEvaluationFailure(t *testing.T) {
	evaluationFailuresTotal.Reset()

	RecordEvaluationFailure("transition")
	RecordEvaluationFailure("transition")
	RecordEvaluationFailure("promise")

	transition := testutil.ToFloat64(evaluationFailuresTotal.WithLabelValues("transition"))
	if transition != 2 {
		t.Errorf("Expected 2 transition failures, got %f", transition)
	}
}

func TestListenerRecordsEvents(t *testing.T) {
	interruptionsTotal.Reset()
	turnsTotal.Reset()

	listener := NewListener()
	listener.Handle(&events.Event{
		Type: events.EventInterruption,
		Data: events.InterruptionData{TurnSeq: 3, FlushedChunks: 4, Source: "energy"},
	})
	listener.Handle(&events.Event{
		Type: events.EventTurnCompleted,
		Data: events.TurnCompletedData{TurnSeq: 3, State: types.StateNegotiation, Duration: 800 * time.Millisecond},
	})

	if got := testutil.ToFloat64(interruptionsTotal.WithLabelValues("energy")); got != 1 {
		t.Errorf("Expected 1 energy interruption, got %f", got)
	}
	if got := testutil.ToFloat64(turnsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 success turn, got %f", got)
	}
}

func TestListenerOnBus(t *testing.T) {
	latencyBreachesTotal.Inc() // ensure metric exists before reading
	before := testutil.ToFloat64(latencyBreachesTotal)

	bus := events.NewBus()
	listener := NewListener()
	bus.SubscribeAll(listener.Handle)

	emitter := events.NewEmitter(bus, "call-1")
	emitter.LatencyBreach(2, 1800*time.Millisecond, 1500*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(latencyBreachesTotal) == before+1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("latency breach not recorded via bus")
}

func TestExporterServesMetrics(t *testing.T) {
	exporter := NewExporter(":0")
	RecordTurn("success")

	srv := httptest.NewServer(exporter.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "callcore_turns_total") {
		t.Error("metrics output missing callcore_turns_total")
	}
}
