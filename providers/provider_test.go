package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voicecollect/callcore/types"
)

func debtorSays(text string) []types.Utterance {
	return []types.Utterance{{Speaker: types.SpeakerDebtor, Text: text, Timestamp: time.Now()}}
}

func TestHTTPProvider_GenerateTurn(t *testing.T) {
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"next_state":"verification","reply":"Am I speaking with Jordan?"}`}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewHTTPProvider("llm", "test-model", srv.URL)
	defer p.Close()

	req := TurnRequest{
		System:     "You are a collection agent.",
		Transcript: debtorSays("Hello?"),
	}
	resp, err := p.GenerateTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateTurn() error = %v", err)
	}

	var turn map[string]any
	if err := json.Unmarshal(resp.RawTurn, &turn); err != nil {
		t.Fatalf("raw turn not valid JSON: %v", err)
	}
	if turn["next_state"] != "verification" {
		t.Errorf("next_state = %v", turn["next_state"])
	}

	if len(gotReq.Messages) != 2 {
		t.Fatalf("sent %d messages, want system + user", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("message roles = %s, %s", gotReq.Messages[0].Role, gotReq.Messages[1].Role)
	}
	if gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %q, want json_object", gotReq.ResponseFormat.Type)
	}
}

func TestHTTPProvider_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider("llm", "test-model", srv.URL)
	defer p.Close()

	_, err := p.GenerateTurn(context.Background(), TurnRequest{Transcript: debtorSays("hi")})
	provErr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if !provErr.Retryable {
		t.Error("5xx should be marked retryable")
	}
}

func TestHTTPProvider_HonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider("llm", "test-model", srv.URL)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.GenerateTurn(ctx, TurnRequest{Transcript: debtorSays("hi")})
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("call took %v, deadline not enforced", elapsed)
	}
}

func TestHTTPProvider_RejectsEmptyTranscript(t *testing.T) {
	p := NewHTTPProvider("llm", "test-model", "http://127.0.0.1:1")
	defer p.Close()

	if _, err := p.GenerateTurn(context.Background(), TurnRequest{}); err != ErrEmptyTranscript {
		t.Errorf("GenerateTurn(empty) = %v, want ErrEmptyTranscript", err)
	}
}

func TestMockProvider_ReplaysScriptAndRepeatsLast(t *testing.T) {
	p := NewMockProvider("mock",
		ScriptedTurn{RawTurn: json.RawMessage(`{"reply":"first"}`)},
		ScriptedTurn{RawTurn: json.RawMessage(`{"reply":"second"}`)},
	)

	want := []string{"first", "second", "second"}
	for i, w := range want {
		resp, err := p.GenerateTurn(context.Background(), TurnRequest{Transcript: debtorSays("hi")})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		var turn struct {
			Reply string `json:"reply"`
		}
		_ = json.Unmarshal(resp.RawTurn, &turn)
		if turn.Reply != w {
			t.Errorf("call %d reply = %q, want %q", i, turn.Reply, w)
		}
	}
	if p.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", p.Calls())
	}
}

func TestMockProvider_DelayRespectsContext(t *testing.T) {
	p := NewMockProvider("mock", ScriptedTurn{
		RawTurn: json.RawMessage(`{}`),
		Delay:   time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.GenerateTurn(ctx, TurnRequest{Transcript: debtorSays("hi")})
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("delay did not respect context cancellation")
	}
}

func TestRateLimited_DelegatesAndPaces(t *testing.T) {
	inner := NewMockProvider("mock", ScriptedTurn{RawTurn: json.RawMessage(`{}`)})
	limited := NewRateLimited(inner, 100, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := limited.GenerateTurn(context.Background(), TurnRequest{Transcript: debtorSays("hi")}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	// Burst of 1 at 100 rps: calls 2 and 3 each wait ~10ms.
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("3 calls finished in %v, limiter not pacing", elapsed)
	}
	if inner.Calls() != 3 {
		t.Errorf("inner calls = %d, want 3", inner.Calls())
	}
}
