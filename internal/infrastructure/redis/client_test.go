package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewClient(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIncrWindowSetsExpiryOnce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "visiongate:test:" + uuid.NewString()

	n, err := c.IncrWindow(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl, err := c.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// later hits keep the original expiry instead of extending it
	require.NoError(t, c.rdb.Expire(ctx, key, 10*time.Second).Err())
	n, err = c.IncrWindow(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	ttl, err = c.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 10*time.Second)
}

func TestIncrWindowRepairsCounterWithoutExpiry(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "visiongate:test:" + uuid.NewString()

	require.NoError(t, c.rdb.Set(ctx, key, 7, 0).Err())

	n, err := c.IncrWindow(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	ttl, err := c.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "a stale counter must get a window")
}
