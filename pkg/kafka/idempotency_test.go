package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryIdempotencyStore_AddContains(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)

	exists, err := store.Contains(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Add(ctx, "order-1"))

	exists, err = store.Contains(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Nanosecond)

	require.NoError(t, store.Add(ctx, "order-1"))
	time.Sleep(time.Millisecond)

	exists, err := store.Contains(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, store.Len())
}

func TestIdempotentHandler_SkipsDuplicateAggregate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)

	calls := 0
	handler := IdempotentHandler(store, KeyByAggregateID, func(ctx context.Context, e *Event) error {
		calls++
		return nil
	}, testLogger())

	first, err := NewEvent("order.authorized", "order-1", "orders", map[string]int{"x": 1})
	require.NoError(t, err)
	// Redelivery with a fresh event ID but the same aggregate.
	second, err := NewEvent("order.authorized", "order-1", "orders", map[string]int{"x": 1})
	require.NoError(t, err)

	require.NoError(t, handler(ctx, first))
	require.NoError(t, handler(ctx, second))

	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_FailedHandlingIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)

	calls := 0
	handler := IdempotentHandler(store, KeyByAggregateID, func(ctx context.Context, e *Event) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, testLogger())

	event, err := NewEvent("order.authorized", "order-2", "orders", nil)
	require.NoError(t, err)

	require.Error(t, handler(ctx, event))
	require.NoError(t, handler(ctx, event))
	assert.Equal(t, 2, calls)
}

func TestIdempotentHandler_EmptyKeyPassesThrough(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)

	calls := 0
	handler := IdempotentHandler(store, KeyByAggregateID, func(ctx context.Context, e *Event) error {
		calls++
		return nil
	}, testLogger())

	event := &Event{EventType: "order.authorized"}
	require.NoError(t, handler(ctx, event))
	require.NoError(t, handler(ctx, event))
	assert.Equal(t, 2, calls)
}
