package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemory(t *testing.T, size int) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryMaxSize(size), WithMemoryClock(clock.Now), WithMemoryCleanup(time.Hour))
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clock
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(WithRedisAddr(mr.Addr()), WithRedisPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	mc, clock := newMemory(t, 10)

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(2 * time.Minute)
	_, err = mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	mc, _ := newMemory(t, 10)

	buf := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, _ := newMemory(t, 2)

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), 0))
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), 0))

	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	ok, err := mc.Exists(ctx, "a", "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc, _ := newMemory(t, 10)

	for _, k := range []string{"art:1:x", "art:1:y", "sess:abc"} {
		require.NoError(t, mc.Set(ctx, k, []byte(k), 0))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("art")))

	ok, _ := mc.Exists(ctx, "art:1:x", "art:1:y")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "sess:abc")
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	mc, _ := newMemory(t, 10)

	in := map[string]string{"Tech": "RdBu"}
	require.NoError(t, SetJSON(ctx, mc, "sess", in, time.Minute))
	out, err := GetJSON[map[string]string](ctx, mc, "sess")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = GetJSON[map[string]string](ctx, mc, "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	rc, mr := newRedis(t)

	require.NoError(t, rc.Set(ctx, "art:1:a", []byte("payload"), time.Minute))
	assert.True(t, mr.Exists("test:art:1:a"))

	got, err := rc.Get(ctx, "art:1:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	mr.FastForward(2 * time.Minute)
	_, err = rc.Get(ctx, "art:1:a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, rc.Set(ctx, "art:2:a", []byte("1"), 0))
	require.NoError(t, rc.Set(ctx, "art:2:b", []byte("2"), 0))
	require.NoError(t, rc.Set(ctx, "sess:x", []byte("3"), 0))
	require.NoError(t, rc.DeleteByPattern(ctx, BuildPattern("art")))

	ok, err := rc.Exists(ctx, "art:2:a", "art:2:b")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = rc.Exists(ctx, "sess:x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCachePromotesFromRedis(t *testing.T) {
	ctx := context.Background()
	rc, _ := newRedis(t)
	lc := NewLayeredCache(rc, WithLayeredMemorySize(10))
	t.Cleanup(func() { _ = lc.memCache.Close() })

	require.NoError(t, rc.Set(ctx, "k", []byte("from-redis"), 0))
	got, err := lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-redis", string(got))

	l1, err := lc.memCache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-redis", string(l1))

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = lc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestHashKey(t *testing.T) {
	assert.NotEqual(t, HashKey("ab", "c"), HashKey("a", "bc"))
	assert.Equal(t, HashKey("x"), HashKey("x"))
	assert.Len(t, HashKey("x"), 32)
	assert.Equal(t, "art:3:zip", GenerateKeyWithParams("art", 3, "zip"))
}
