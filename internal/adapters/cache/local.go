// Package cache holds the resolve fast path: a sharded in-process layer in
// front of an optional shared Redis layer, kept coherent by cluster-wide
// invalidation messages.
package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/regmarket/namereg/internal/core/domain"
)

// shardCount determines the number of internal shards to reduce lock contention.
const shardCount = 256

type localEntry struct {
	target    domain.Account
	expiresAt time.Time
}

type localShard struct {
	mu    sync.RWMutex
	items map[string]localEntry
}

// Local implements a sharded, thread-safe, in-memory cache of resolve targets
// keyed by hex name key. Sharding is used to minimize lock contention during
// high-concurrency access.
type Local struct {
	shards [shardCount]*localShard
}

// NewLocal initializes a new Local cache with pre-allocated shards and starts
// the background expiration cleanup loop.
func NewLocal() *Local {
	c := &Local{}
	for i := 0; i < shardCount; i++ {
		c.shards[i] = &localShard{
			items: make(map[string]localEntry),
		}
	}
	// Background goroutine to periodically clean up expired items from all shards.
	go c.cleanupLoop()
	return c
}

// getShard returns the specific shard responsible for the given key based on its hash.
func (c *Local) getShard(key string) *localShard {
	h := fnv.New32a()
	h.Write([]byte(key)) // #nosec G104
	return c.shards[h.Sum32()%shardCount]
}

// Get retrieves a target from the cache. It returns ("", false) if the key is
// missing or has already expired. An empty target with ok true is a cached
// negative answer.
func (c *Local) Get(key string) (domain.Account, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	item, found := shard.items[key]
	if !found {
		return "", false
	}

	// Check if the item is still valid.
	if time.Now().After(item.expiresAt) {
		return "", false
	}

	return item.target, true
}

// Set stores a target in the cache with a specific TTL.
func (c *Local) Set(key string, target domain.Account, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.items[key] = localEntry{
		target:    target,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete evicts one key.
func (c *Local) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.items, key)
}

// Flush removes all items from all shards in the cache.
func (c *Local) Flush() {
	for i := 0; i < shardCount; i++ {
		shard := c.shards[i]
		shard.mu.Lock()
		shard.items = make(map[string]localEntry)
		shard.mu.Unlock()
	}
}

// cleanupLoop periodically triggers the cache-wide cleanup process.
func (c *Local) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.Cleanup()
	}
}

// Cleanup scans all shards and deletes items that have passed their expiration time.
func (c *Local) Cleanup() {
	now := time.Now()
	for i := 0; i < shardCount; i++ {
		shard := c.shards[i]
		shard.mu.Lock()
		for k, v := range shard.items {
			if now.After(v.expiresAt) {
				delete(shard.items, k)
			}
		}
		shard.mu.Unlock()
	}
}
