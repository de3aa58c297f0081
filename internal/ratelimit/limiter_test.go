package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessLimiter_AllowsWithinBurst(t *testing.T) {
	l := NewInProcessLimiter(1, 3)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within burst should be allowed", i)
	}

	allowed, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowed, "request beyond burst should be rejected")
}

func TestInProcessLimiter_TracksKeysIndependently(t *testing.T) {
	l := NewInProcessLimiter(1, 1)
	defer l.Close()

	ctx := context.Background()
	allowedA, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, allowedA)

	allowedB, err := l.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, allowedB, "a fresh key must get its own bucket")

	allowedA2, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowedA2, "client-a's bucket is already exhausted")
}

func TestInProcessLimiter_RefillsOverTime(t *testing.T) {
	l := NewInProcessLimiter(50, 1)
	defer l.Close()

	ctx := context.Background()
	allowed, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(40 * time.Millisecond)

	allowed, err = l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, allowed, "bucket should have refilled at 50 tokens/sec")
}

func TestInProcessLimiter_CloseIsIdempotent(t *testing.T) {
	l := NewInProcessLimiter(1, 1)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}
