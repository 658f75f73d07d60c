package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestRedisCacheSeenAndAdd(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Add(ctx, "a1b2c3"))

	seen, err = cache.Seen(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.True(t, seen)

	// Unrelated keys stay unseen.
	seen, err = cache.Seen(ctx, "d4e5f6")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Add(ctx, "a1b2c3"))
	mr.FastForward(2 * time.Hour)

	seen, err := cache.Seen(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCacheErrorAfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)

	mr.Close()

	_, err = cache.Seen(context.Background(), "a1b2c3")
	assert.Error(t, err)
}

func TestNewRedisCacheInvalidURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestNoopCache(t *testing.T) {
	cache := NoopCache{}
	ctx := context.Background()

	require.NoError(t, cache.Add(ctx, "a1b2c3"))

	seen, err := cache.Seen(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.NoError(t, cache.Close())
}
