package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// redisKeyPrefix namespaces orchestrator entries within a shared Redis.
const redisKeyPrefix = "quorum:response:"

// RedisCache is a ResponseCache backed by Redis, for deployments where
// multiple orchestrator instances share one warm cache. Envelopes are
// stored as JSON with Redis-side TTL expiry.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.ResponseCache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed cache and verifies connectivity
// with a ping.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// NewRedisCacheWithClient wraps an existing client, mainly for tests.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached envelope for key, or found=false when absent or
// expired. A corrupt entry is dropped and reported as a miss rather than
// failing the dispatch.
func (c *RedisCache) Get(ctx context.Context, key string) (domain.ResponseEnvelope, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ResponseEnvelope{}, false, nil
	}
	if err != nil {
		return domain.ResponseEnvelope{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var env domain.ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.client.Del(ctx, redisKeyPrefix+key)
		return domain.ResponseEnvelope{}, false, nil
	}

	return env, true, nil
}

// Put stores a successful envelope under key with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, key string, env domain.ResponseEnvelope) error {
	if !env.IsSuccess() {
		return fmt.Errorf("refusing to cache non-success envelope for provider %s", env.Provider)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate removes key from the cache. Removing an absent key is a no-op.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Close releases the underlying client connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
