package bom

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheFetchJSONPopulatesAndReuses(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "bom", "expand", "1")
	require.NoError(t, err)
	require.Equal(t, "bom:expand:1:1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]string{"name": "Basic Tee"}, nil
	}

	var first map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, "Basic Tee", first["name"])
	require.Equal(t, 1, calls)

	var second map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, "Basic Tee", second["name"])
	require.Equal(t, 1, calls, "second fetch must hit the cache")
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "bom", "expand", "1")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "bom", "expand", "1")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	var got int
	require.NoError(t, cache.FetchJSON(ctx, "bom:ttl", &got, loader))
	require.Equal(t, 1, got)

	mr.FastForward(2 * time.Minute)

	require.NoError(t, cache.FetchJSON(ctx, "bom:ttl", &got, loader))
	require.Equal(t, 2, got, "expired entry must be reloaded")
}

func TestCacheNilClientFallsThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "bom", "expand", "9")
	require.NoError(t, err)
	require.Equal(t, "bom:expand:9", key)

	var got string
	require.NoError(t, cache.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
		return "direct", nil
	}))
	require.Equal(t, "direct", got)
	require.NoError(t, cache.Bump(ctx))
}
