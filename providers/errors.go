package providers

import (
	"errors"
	"fmt"
)

// ErrEmptyTranscript indicates a turn request with no utterances.
var ErrEmptyTranscript = errors.New("turn request has no transcript")

// ProviderError wraps a model backend failure with provider context.
type ProviderError struct {
	Provider  string
	Operation string
	Err       error
	// Retryable reports whether the caller may reasonably retry.
	// Turn generation is never blind-retried; this informs session
	// teardown decisions instead.
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a ProviderError.
func NewProviderError(provider, operation string, err error, retryable bool) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Err: err, Retryable: retryable}
}
