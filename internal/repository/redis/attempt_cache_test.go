package redis

import (
	"context"
	"testing"
	"time"

	"access-gate/internal/client"
	"access-gate/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, max int) (*AttemptCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := client.NewRedisClient(&config.Config{Redis: config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return NewAttemptCache(rc, max, 15*time.Minute), mr
}

func TestLockAfterMaxAttempts(t *testing.T) {
	c, _ := newCache(t, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		n, err := c.RecordFailure(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, i, n)
		ok, err := c.Allowed(ctx, "h1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err := c.RecordFailure(ctx, "h1")
	require.NoError(t, err)
	ok, err := c.Allowed(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Attempts(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err = c.Allowed(ctx, "h2")
	require.NoError(t, err)
	assert.True(t, ok, "other contacts are unaffected")
}

func TestLockExpires(t *testing.T) {
	c, mr := newCache(t, 1)
	ctx := context.Background()

	_, err := c.RecordFailure(ctx, "h1")
	require.NoError(t, err)
	ok, _ := c.Allowed(ctx, "h1")
	assert.False(t, ok)

	mr.FastForward(16 * time.Minute)
	ok, err = c.Allowed(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := c.Attempts(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAttemptsRejectsCorruptCounter(t *testing.T) {
	c, mr := newCache(t, 3)
	require.NoError(t, mr.Set(attemptPrefix+"h1", "not-a-number"))

	_, err := c.Attempts(context.Background(), "h1")
	assert.Error(t, err)
}

func TestResetClearsCounterAndLock(t *testing.T) {
	c, _ := newCache(t, 2)
	ctx := context.Background()

	_, _ = c.RecordFailure(ctx, "h1")
	_, _ = c.RecordFailure(ctx, "h1")
	require.NoError(t, c.Reset(ctx, "h1"))

	ok, err := c.Allowed(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := c.Attempts(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
