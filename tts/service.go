// Package tts wraps a text-to-speech provider's streaming API, emitting
// audio chunks incrementally as text becomes available and supporting
// mid-utterance cancellation for interruption handling.
package tts

import (
	"context"
)

// Common audio constants.
const (
	sampleRateDefault = 16000
	bitDepthDefault   = 16
)

// AudioChunk represents a chunk of synthesized audio data.
type AudioChunk struct {
	// Data is the raw audio bytes.
	Data []byte

	// Index is the chunk sequence number (0-indexed).
	Index int

	// Final indicates this is the last chunk of the utterance.
	Final bool

	// Error is set if an error occurred during synthesis.
	Error error
}

// Service converts text to streaming speech audio for one call.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// SynthesizeStream converts text to audio with streaming output.
	// Returns a channel that receives audio chunks as they're generated.
	// The channel is closed when synthesis completes, fails, or is
	// cancelled.
	SynthesizeStream(ctx context.Context, text string, config SynthesisConfig) (<-chan AudioChunk, error)

	// CancelSynthesis aborts any in-flight synthesis for the current
	// utterance. Safe to call when nothing is in flight.
	CancelSynthesis()

	// Close releases the session. Idempotent.
	Close() error
}

// SynthesisConfig configures text-to-speech synthesis.
type SynthesisConfig struct {
	// Voice is the voice ID to use for synthesis.
	Voice string

	// Format is the output audio format name ("pcm", "mulaw").
	Format string

	// SampleRate is the output sample rate in Hz. Default: 16000.
	SampleRate int

	// Speed is the speech rate multiplier (0.25-4.0, default 1.0).
	Speed float64

	// Language is the language code for synthesis (e.g., "en-US").
	Language string
}

// DefaultSynthesisConfig returns sensible defaults for telephony synthesis.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Voice:      "default",
		Format:     "pcm",
		SampleRate: sampleRateDefault,
		Speed:      1.0,
	}
}
