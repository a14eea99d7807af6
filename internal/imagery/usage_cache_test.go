package imagery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

var pool = []string{
	"https://cdn.example/categories/roofing/1.jpg",
	"https://cdn.example/categories/roofing/2.jpg",
	"https://cdn.example/categories/roofing/3.jpg",
	"https://cdn.example/categories/roofing/4.jpg",
}

func assertRoundRobin(t *testing.T, cache UsageCache) {
	t.Helper()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < len(pool); i++ {
		got, err := cache.Pick(ctx, domain.CategoryRoofing, pool)
		require.NoError(t, err)
		assert.False(t, seen[got], "repeat of %s before pool exhausted", got)
		seen[got] = true
	}
	assert.Len(t, seen, len(pool))

	// Next round starts over.
	got, err := cache.Pick(ctx, domain.CategoryRoofing, pool)
	require.NoError(t, err)
	assert.Equal(t, pool[0], got)

	// Categories are independent.
	got, err = cache.Pick(ctx, domain.CategoryPlumbing, pool)
	require.NoError(t, err)
	assert.Equal(t, pool[0], got)

	require.NoError(t, cache.Reset(ctx, domain.CategoryRoofing))
	got, err = cache.Pick(ctx, domain.CategoryRoofing, pool)
	require.NoError(t, err)
	assert.Equal(t, pool[0], got)

	_, err = cache.Pick(ctx, domain.CategoryRoofing, nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestMemoryUsageCacheRoundRobin(t *testing.T) {
	assertRoundRobin(t, NewMemoryUsageCache())
}

func TestRedisUsageCacheRoundRobin(t *testing.T) {
	client, _ := setupTestRedis(t)
	assertRoundRobin(t, NewRedisUsageCache(client, time.Hour))
}

func TestRedisUsageCacheKeyAndTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisUsageCache(client, time.Hour)

	_, err := cache.Pick(context.Background(), domain.CategoryHomeRepair, pool[:2])
	require.NoError(t, err)

	members, err := mr.Members("imagery:shown:home-repair")
	require.NoError(t, err)
	assert.Equal(t, []string{pool[0]}, members)
	assert.Equal(t, time.Hour, mr.TTL("imagery:shown:home-repair"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("imagery:shown:home-repair"))
}

func TestMemoryUsageCacheShrinkingPool(t *testing.T) {
	cache := NewMemoryUsageCache()
	ctx := context.Background()

	_, _ = cache.Pick(ctx, domain.CategoryGardening, pool)
	_, _ = cache.Pick(ctx, domain.CategoryGardening, pool)

	// Only already-shown images remain: a new round begins.
	got, err := cache.Pick(ctx, domain.CategoryGardening, pool[:2])
	require.NoError(t, err)
	assert.Equal(t, pool[0], got)
}
