package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys
// are automatically extracted and added to log entries by ContextHandler.
const (
	// ContextKeyCallID identifies the call session.
	ContextKeyCallID contextKey = "call_id"

	// ContextKeyTurnSeq identifies the current conversation turn.
	ContextKeyTurnSeq contextKey = "turn_seq"

	// ContextKeyState identifies the current conversation state.
	ContextKeyState contextKey = "state"

	// ContextKeyStage identifies the pipeline stage (e.g., "stt", "llm", "tts").
	ContextKeyStage contextKey = "stage"

	// ContextKeyProvider identifies the STT/TTS/LLM provider.
	ContextKeyProvider contextKey = "provider"
)

// allContextKeys lists all context keys that are extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyCallID,
	ContextKeyTurnSeq,
	ContextKeyState,
	ContextKeyStage,
	ContextKeyProvider,
}

// WithCallID returns a context carrying the call session id for logging.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, ContextKeyCallID, callID)
}

// WithTurnSeq returns a context carrying the turn sequence number for logging.
func WithTurnSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, ContextKeyTurnSeq, seq)
}

// WithState returns a context carrying the conversation state for logging.
func WithState(ctx context.Context, state string) context.Context {
	return context.WithValue(ctx, ContextKeyState, state)
}

// WithStage returns a context carrying the pipeline stage for logging.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithProvider returns a context carrying the provider name for logging.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}
