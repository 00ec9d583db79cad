package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_DefaultsInvalidRateAndBurst(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, 10.0, rl.rate)
	assert.Equal(t, 20.0, rl.burst)
}

func TestNewRateLimiter_BurstNeverBelowRate(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	assert.Equal(t, 10.0, rl.burst)
}

func TestWait_ConsumesAvailableTokenImmediately(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, rl.Wait(ctx))
}

func TestWait_BlocksUntilRefillWhenBucketEmpty(t *testing.T) {
	rl := NewRateLimiter(100, 1)
	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx))

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.Greater(t, time.Since(start), 5*time.Millisecond)
}

func TestWait_RespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.NoError(t, rl.Wait(context.Background())) // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
