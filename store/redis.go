package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voicecollect/callcore/types"
)

// defaultTTL keeps call records for 30 days unless configured otherwise.
const defaultTTL = 30 * 24 * time.Hour

// RedisStore provides a Redis-backed implementation of the Store
// interface. Records are stored as JSON with automatic TTL cleanup.
// Suitable for distributed deployments where multiple call workers
// share one record store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the record time-to-live. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the Redis key prefix. Default is "callcore".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a Redis-backed call record store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(7 * 24 * time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "callcore",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Save persists a call record with TTL. The SET and debtor index
// update go through a pipeline in a single round-trip.
func (s *RedisStore) Save(ctx context.Context, record *types.CallRecord) error {
	if record == nil {
		return ErrInvalidRecord
	}
	if record.SessionID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.recordKey(record.SessionID), data, s.ttl)

	if record.DebtorID != "" {
		indexKey := s.debtorIndexKey(record.DebtorID)
		pipe.ZAdd(ctx, indexKey, redis.Z{
			Score:  float64(record.EndedAt.UnixMilli()),
			Member: record.SessionID,
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, indexKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Load retrieves a call record by session ID.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*types.CallRecord, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.recordKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var record types.CallRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
	}
	return &record, nil
}

// ListByDebtor returns session IDs for the debtor, newest first.
func (s *RedisStore) ListByDebtor(ctx context.Context, debtorID string) ([]string, error) {
	if debtorID == "" {
		return nil, ErrInvalidID
	}

	ids, err := s.client.ZRevRange(ctx, s.debtorIndexKey(debtorID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange failed: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) recordKey(sessionID string) string {
	return s.prefix + ":call:" + sessionID
}

func (s *RedisStore) debtorIndexKey(debtorID string) string {
	return s.prefix + ":debtor:" + debtorID
}
