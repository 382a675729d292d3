package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLockAcquireOnce(t *testing.T) {
	client, _ := newTestClient(t)
	locks := NewEventLockService(client, time.Hour)
	ctx := context.Background()

	acquired, err := locks.Acquire(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	// The duplicate delivery loses the race.
	acquired, err = locks.Acquire(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, acquired)

	// A different event is unaffected.
	acquired, err = locks.Acquire(ctx, "ev-2")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestEventLockMarkDoneStillBlocks(t *testing.T) {
	client, mr := newTestClient(t)
	locks := NewEventLockService(client, time.Hour)
	ctx := context.Background()

	_, err := locks.Acquire(ctx, "ev-1")
	require.NoError(t, err)
	locks.MarkDone(ctx, "ev-1")

	state, err := mr.Get("event_lock:ev-1")
	require.NoError(t, err)
	assert.Equal(t, "done", state)

	// A done record blocks redelivery just like a processing one.
	acquired, err := locks.Acquire(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestEventLockReleaseAllowsRetry(t *testing.T) {
	client, _ := newTestClient(t)
	locks := NewEventLockService(client, time.Hour)
	ctx := context.Background()

	_, err := locks.Acquire(ctx, "ev-1")
	require.NoError(t, err)

	// Release after a failed handling opens the door for the retry delivery.
	locks.Release(ctx, "ev-1")

	acquired, err := locks.Acquire(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, acquired)
}
