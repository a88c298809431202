// Package stt wraps a speech-to-text provider's streaming API and turns
// it into interim and final transcript events for the call pipeline.
package stt

import (
	"context"
	"time"

	"github.com/voicecollect/callcore/types"
)

const (
	// Default audio settings.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	// Common audio formats.
	FormatPCM = "pcm"
	FormatWAV = "wav"
)

// Service is a streaming speech-to-text session for one call. It emits a
// TranscriptEvent for every interim update and exactly one final event
// per utterance boundary, detected via provider-reported end-of-speech or
// a silence timeout.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Start connects to the provider and begins streaming. The stream
	// stays live for the life of the call; interruption never cancels it.
	Start(ctx context.Context) error

	// SendAudio forwards one inbound audio frame to the provider.
	SendAudio(frame types.AudioFrame) error

	// Events returns the transcript event stream. Closed when the
	// session ends.
	Events() <-chan types.TranscriptEvent

	// Done is closed when the stream has terminated.
	Done() <-chan struct{}

	// Err returns the terminal error, if any, after Done is closed.
	Err() error

	// Close tears down the stream. Idempotent.
	Close() error
}

// Config configures a streaming transcription session.
type Config struct {
	// SampleRate is the inbound audio sample rate in Hz. Default: 16000.
	SampleRate int

	// Language is a hint for the transcription language (e.g., "en").
	Language string

	// Model is the STT model to use (provider-specific).
	Model string

	// SilenceTimeout finalizes an utterance when the provider reports no
	// further speech for this duration. Default: 700ms.
	SilenceTimeout time.Duration
}

// DefaultSilenceTimeout is the fallback utterance boundary timeout.
const DefaultSilenceTimeout = 700 * time.Millisecond

func (c *Config) defaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
}
