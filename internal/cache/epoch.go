// Package cache provides the single, process-wide, epoch-versioned cache
// used by producer selection, the validated-peers read path, and the
// network-height gauge (spec §5 Design Notes: "Global mutable caches").
//
// Each cache is addressed by message (Get/Set/Invalidate), backed by a
// small TTL map, and carries an epoch counter: any topology-changing event
// bumps the epoch, and readers that see a stale epoch recompute rather
// than trust the old value. A stale cache entry is preferable to a wrong
// one — when in doubt, recompute (§5 Cache coherence).
package cache

import (
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// EpochCache is a generic TTL-bounded cache with an epoch counter. T is the
// cached value type (e.g. []PeerInfo, string producer id, uint64 height).
type EpochCache[T any] struct {
	tc    *ttlcache.Cache[string, T]
	epoch atomic.Uint64
}

// NewEpochCache creates a cache whose entries expire after ttl unless
// refreshed. ttl of 0 disables expiry (entries live until invalidated).
func NewEpochCache[T any](ttl time.Duration) *EpochCache[T] {
	opts := []ttlcache.Option[string, T]{}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[string, T](ttl))
	}
	tc := ttlcache.New[string, T](opts...)
	go tc.Start()
	return &EpochCache[T]{tc: tc}
}

// Epoch returns the current epoch number.
func (c *EpochCache[T]) Epoch() uint64 {
	return c.epoch.Load()
}

// Bump invalidates the cache by advancing the epoch and clearing all
// entries. Called on any topology-changing event: admission, eviction,
// emergency producer change.
func (c *EpochCache[T]) Bump() {
	c.epoch.Add(1)
	c.tc.DeleteAll()
}

// Get returns the cached value for key and the epoch it was stored under,
// plus whether it was found and still believed fresh (epoch match).
func (c *EpochCache[T]) Get(key string) (value T, epoch uint64, ok bool) {
	item := c.tc.Get(key)
	if item == nil {
		return value, 0, false
	}
	return item.Value(), c.epoch.Load(), true
}

// Set stores value under key, valid for the cache's configured TTL.
func (c *EpochCache[T]) Set(key string, value T) {
	c.tc.Set(key, value, ttlcache.DefaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL override.
func (c *EpochCache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.tc.Set(key, value, ttl)
}

// Delete removes a single key without bumping the epoch (used when an
// entry merely expires on its own terms, e.g. producer-cache round
// eviction older than 3 rounds — not a topology change).
func (c *EpochCache[T]) Delete(key string) {
	c.tc.Delete(key)
}

// Len reports the number of live entries.
func (c *EpochCache[T]) Len() int {
	return c.tc.Len()
}

// Stop shuts down the background janitor goroutine.
func (c *EpochCache[T]) Stop() {
	c.tc.Stop()
}
