// Package store provides persistence for completed call records.
package store

import (
	"context"
	"errors"

	"github.com/voicecollect/callcore/types"
)

// Store defines the interface for call record persistence.
type Store interface {
	// Save persists a call record keyed by its session ID.
	Save(ctx context.Context, record *types.CallRecord) error

	// Load retrieves a call record by session ID.
	Load(ctx context.Context, sessionID string) (*types.CallRecord, error)

	// ListByDebtor returns the session IDs of all stored calls for the
	// given debtor, newest first.
	ListByDebtor(ctx context.Context, debtorID string) ([]string, error)
}

// ErrNotFound is returned when a call record doesn't exist.
var ErrNotFound = errors.New("call record not found")

// ErrInvalidID is returned when an empty session ID is provided.
var ErrInvalidID = errors.New("invalid session ID")

// ErrInvalidRecord is returned when a nil record is saved.
var ErrInvalidRecord = errors.New("invalid call record")
