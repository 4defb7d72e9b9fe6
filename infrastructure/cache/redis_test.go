package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/internal/domain"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	c := NewRedisCacheWithClient(client, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c, server
}

// TestRedisCache_PutAndGet tests the JSON round trip through Redis.
func TestRedisCache_PutAndGet(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	env := successEnvelope("anthropic", "cached answer")
	require.NoError(t, c.Put(ctx, "key-1", env), "put should succeed")

	got, found, err := c.Get(ctx, "key-1")
	require.NoError(t, err, "get should succeed")
	require.True(t, found, "entry should be found")
	assert.Equal(t, env.Provider, got.Provider, "provider should round-trip")
	assert.Equal(t, env.Text, got.Text, "text should round-trip")
	assert.Equal(t, env.Latency, got.Latency, "latency should round-trip")
	assert.True(t, got.IsSuccess(), "status should round-trip")
}

// TestRedisCache_MissingKey tests that absent keys are a miss, not an
// error.
func TestRedisCache_MissingKey(t *testing.T) {
	c, _ := newTestRedisCache(t)

	_, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err, "miss should not be an error")
	assert.False(t, found, "absent key should not be found")
}

// TestRedisCache_RejectsNonSuccessEnvelopes tests that only successful
// responses are cached.
func TestRedisCache_RejectsNonSuccessEnvelopes(t *testing.T) {
	c, _ := newTestRedisCache(t)

	env := domain.NewErrorEnvelope("anthropic", "test-model", domain.ErrorKindTimeout, "deadline", time.Second)
	err := c.Put(context.Background(), "key-1", env)

	require.Error(t, err, "caching a timeout envelope should fail")
}

// TestRedisCache_TTLExpiry tests that entries vanish after the TTL.
func TestRedisCache_TTLExpiry(t *testing.T) {
	c, server := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "key-1", successEnvelope("anthropic", "answer")), "put should succeed")

	server.FastForward(time.Minute + time.Second)

	_, found, err := c.Get(ctx, "key-1")
	require.NoError(t, err, "expired read should not be an error")
	assert.False(t, found, "expired entry should be absent")
}

// TestRedisCache_Invalidate tests explicit removal.
func TestRedisCache_Invalidate(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "key-1", successEnvelope("anthropic", "answer")), "put should succeed")
	require.NoError(t, c.Invalidate(ctx, "key-1"), "invalidate should succeed")

	_, found, _ := c.Get(ctx, "key-1")
	assert.False(t, found, "invalidated entry should be absent")

	assert.NoError(t, c.Invalidate(ctx, "key-1"), "invalidating an absent key should be a no-op")
}

// TestRedisCache_CorruptEntryIsAMiss tests that undecodable payloads are
// dropped instead of failing the dispatch.
func TestRedisCache_CorruptEntryIsAMiss(t *testing.T) {
	c, server := newTestRedisCache(t)

	require.NoError(t, server.Set(redisKeyPrefix+"key-1", "not json"), "seed should succeed")

	_, found, err := c.Get(context.Background(), "key-1")
	require.NoError(t, err, "corrupt entry should not be an error")
	assert.False(t, found, "corrupt entry should be reported as a miss")
	assert.False(t, server.Exists(redisKeyPrefix+"key-1"), "corrupt entry should be deleted")
}
