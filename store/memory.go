package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/voicecollect/callcore/types"
)

// MemoryStore provides an in-memory implementation of the Store
// interface. It is thread-safe and suitable for development, testing,
// and single-instance deployments. For distributed systems, use
// RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.CallRecord

	// debtorIndex maps debtorID to session IDs, newest last.
	debtorIndex map[string][]string
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*types.CallRecord),
		debtorIndex: make(map[string][]string),
	}
}

// Save persists a call record. Saving the same session ID again
// replaces the previous record without duplicating the debtor index.
func (s *MemoryStore) Save(ctx context.Context, record *types.CallRecord) error {
	if record == nil {
		return ErrInvalidRecord
	}
	if record.SessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.records[record.SessionID]
	s.records[record.SessionID] = deepCopyRecord(record)

	if record.DebtorID != "" && !existed {
		s.debtorIndex[record.DebtorID] = append(s.debtorIndex[record.DebtorID], record.SessionID)
	}
	return nil
}

// Load retrieves a call record by session ID. It returns a deep copy
// to prevent external mutation.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*types.CallRecord, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[sessionID]
	if !exists {
		return nil, ErrNotFound
	}
	return deepCopyRecord(record), nil
}

// ListByDebtor returns session IDs for the debtor, newest first.
func (s *MemoryStore) ListByDebtor(ctx context.Context, debtorID string) ([]string, error) {
	if debtorID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.debtorIndex[debtorID]
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out, nil
}

// deepCopyRecord copies a record through JSON. Records are small and
// saved once per call, so the cost is irrelevant.
func deepCopyRecord(record *types.CallRecord) *types.CallRecord {
	data, err := json.Marshal(record)
	if err != nil {
		out := *record
		return &out
	}
	var out types.CallRecord
	if err := json.Unmarshal(data, &out); err != nil {
		fallback := *record
		return &fallback
	}
	return &out
}
