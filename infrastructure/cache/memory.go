// Package cache provides ResponseCache implementations: an in-process
// memory cache for single-node deployments and tests, and a Redis-backed
// cache for sharing entries across orchestrator instances.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// DefaultTTL is the entry lifetime applied when a cache is built with a
// non-positive TTL.
const DefaultTTL = 15 * time.Minute

type memoryEntry struct {
	envelope  domain.ResponseEnvelope
	expiresAt time.Time
}

// MemoryCache is an in-process ResponseCache with per-entry TTL. Expired
// entries are treated as absent and dropped lazily on read. Writes are
// last-write-wins; concurrent readers observe either the old or the new
// envelope, never a mix.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	now func() time.Time
}

var _ ports.ResponseCache = (*MemoryCache)(nil)

// NewMemoryCache creates a memory cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached envelope for key, or found=false when absent or
// expired.
func (c *MemoryCache) Get(_ context.Context, key string) (domain.ResponseEnvelope, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return domain.ResponseEnvelope{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresher entry may have landed.
		if current, ok := c.entries[key]; ok && c.now().After(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return domain.ResponseEnvelope{}, false, nil
	}

	return entry.envelope, true, nil
}

// Put stores a successful envelope under key, replacing any existing entry.
func (c *MemoryCache) Put(_ context.Context, key string, env domain.ResponseEnvelope) error {
	if !env.IsSuccess() {
		return fmt.Errorf("refusing to cache non-success envelope for provider %s", env.Provider)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{
		envelope:  env,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

// Invalidate removes key from the cache. Removing an absent key is a no-op.
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including any not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
