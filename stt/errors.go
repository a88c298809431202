package stt

import (
	"errors"
	"fmt"
)

// Common errors for STT sessions.
var (
	// ErrEmptyAudio is returned when an audio frame carries no data.
	ErrEmptyAudio = errors.New("audio frame is empty")

	// ErrStreamClosed is returned when sending on a terminated stream.
	ErrStreamClosed = errors.New("transcription stream closed")
)

// TranscriptionError represents an error from the STT provider.
type TranscriptionError struct {
	// Provider is the STT provider name.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether reconnecting may succeed.
	Retryable bool
}

// NewTranscriptionError creates a new TranscriptionError.
func NewTranscriptionError(provider, code, message string, cause error, retryable bool) *TranscriptionError {
	return &TranscriptionError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s transcription error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s transcription error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *TranscriptionError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*TranscriptionError)
	if !ok {
		return false
	}
	return e.Provider == t.Provider && e.Code == t.Code
}
