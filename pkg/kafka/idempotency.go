package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records processed keys so redelivered messages can be
// skipped. Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	// Contains returns true if the key has already been processed.
	Contains(ctx context.Context, key string) (bool, error)
	// Add marks a key as processed. Called only after successful handling.
	Add(ctx context.Context, key string) error
}

// KeyFunc extracts the deduplication key from an event. KeyByEventID
// deduplicates exact redeliveries; KeyByAggregateID deduplicates any
// re-emission concerning the same aggregate (e.g. the same order).
type KeyFunc func(event *Event) string

// KeyByEventID returns the event's unique ID.
func KeyByEventID(event *Event) string { return event.EventID }

// KeyByAggregateID returns the event's aggregate ID.
func KeyByAggregateID(event *Event) string { return event.AggregateID }

// MemoryIdempotencyStore is an in-memory IdempotencyStore for development and
// single-instance deployments. Entries expire after the configured TTL.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
}

// NewMemoryIdempotencyStore creates an in-memory idempotency store with the
// given TTL. Expired entries are lazily cleaned up on access.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Contains checks if the key exists and is not expired.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	ts, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}

	if time.Since(ts) > s.ttl {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return false, nil
	}

	return true, nil
}

// Add marks the key as processed with the current timestamp.
func (s *MemoryIdempotencyStore) Add(_ context.Context, key string) error {
	s.mu.Lock()
	s.entries[key] = time.Now()
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries (including potentially expired ones).
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RedisIdempotencyStore is a Redis-backed IdempotencyStore shared across
// service instances. Keys expire after the configured TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store. Keys are
// namespaced with the given prefix.
func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisIdempotencyStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

// Contains checks whether the key exists in Redis.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency exists: %w", err)
	}
	return n > 0, nil
}

// Add marks the key as processed with the configured TTL.
func (s *RedisIdempotencyStore) Add(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, s.key(key), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency set: %w", err)
	}
	return nil
}

// IdempotentHandler wraps a Handler with deduplication. If the key extracted
// by keyFn has already been processed, the message is skipped and nil is
// returned. On store lookup failure the message is processed anyway: at-least-
// once delivery is preferred over dropping work.
func IdempotentHandler(store IdempotencyStore, keyFn KeyFunc, inner Handler, logger *slog.Logger) Handler {
	if keyFn == nil {
		keyFn = KeyByEventID
	}

	return func(ctx context.Context, event *Event) error {
		key := keyFn(event)
		if key == "" {
			return inner(ctx, event)
		}

		exists, err := store.Contains(ctx, key)
		if err != nil {
			logger.Warn("idempotency store lookup failed, processing anyway",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}

		if exists {
			logger.Debug("skipping duplicate event",
				slog.String("key", key),
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		// Mark as processed only after successful handling.
		if addErr := store.Add(ctx, key); addErr != nil {
			logger.Warn("failed to record key in idempotency store",
				slog.String("key", key),
				slog.String("error", addErr.Error()),
			)
		}

		return nil
	}
}
