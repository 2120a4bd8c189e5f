package client

import (
	"context"
	"testing"
	"time"

	"access-gate/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisHealthCheck(t *testing.T) {
	rc, _ := newTestRedis(t)
	assert.NoError(t, rc.HealthCheck(context.Background()))
}

func TestRedisGetMissingKey(t *testing.T) {
	rc, _ := newTestRedis(t)
	_, err := rc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestIncrWithExpire(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	n, err := rc.IncrWithExpire(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = rc.IncrWithExpire(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, time.Minute, mr.TTL("counter"))
	mr.FastForward(2 * time.Minute)

	exists, err := rc.Exists(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetNX(t *testing.T) {
	rc, _ := newTestRedis(t)
	ctx := context.Background()

	ok, err := rc.SetNX(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rc.SetNX(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractHostPort(t *testing.T) {
	assert.Equal(t, "localhost:9000", extractHostPort("localhost"))
	assert.Equal(t, "ch.example.com:9440", extractHostPort("https://ch.example.com"))
	assert.Equal(t, "10.0.0.1:9001", extractHostPort("http://10.0.0.1:9001"))
	assert.Equal(t, "ch.example.com", extractHostname("https://ch.example.com"))
}
