package crypto

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// activationCacheTTL mirrors the signature cache TTL (spec §4.1: "the same
// TTL" as the verification cache, ~3600s).
const activationCacheTTL = 3600 * time.Second

type cachedActivation struct {
	payload  ActivationPayload
	cachedAt time.Time
}

// activationCache is the LRU, TTL-bounded cache of decrypted activation
// payloads keyed by the full activation code (spec §4.1). An LRU eviction
// runs automatically once the cache exceeds its configured maximum size.
type activationCache struct {
	lru *lru.Cache[string, cachedActivation]
}

func newActivationCache(maxSize int) *activationCache {
	c, _ := lru.New[string, cachedActivation](maxSize)
	return &activationCache{lru: c}
}

func (c *activationCache) get(code string) (ActivationPayload, bool) {
	entry, ok := c.lru.Get(code)
	if !ok {
		return ActivationPayload{}, false
	}
	if time.Since(entry.cachedAt) >= activationCacheTTL {
		c.lru.Remove(code)
		return ActivationPayload{}, false
	}
	return entry.payload, true
}

func (c *activationCache) set(code string, payload ActivationPayload) {
	c.lru.Add(code, cachedActivation{payload: payload, cachedAt: time.Now()})
}

func (c *activationCache) len() int {
	return c.lru.Len()
}
