package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_FirstCallPasses(t *testing.T) {
	rl := NewRateLimiter(time.Second)

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimiter_EnforcesInterval(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx))

	// Second call waits at least the base interval.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(cancelCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
