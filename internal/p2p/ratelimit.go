package p2p

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// perPeerRatePerSecond bounds sustained inbound message rate from any
	// single peer (spec §4.3 rate limiting).
	perPeerRatePerSecond = 50
	perPeerBurst         = 100
)

// rateLimiters holds one token-bucket limiter per peer, created lazily.
type rateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiters() *rateLimiters {
	return &rateLimiters{limiters: make(map[string]*rate.Limiter)}
}

func (r *rateLimiters) Allow(nodeID string) bool {
	r.mu.Lock()
	l, ok := r.limiters[nodeID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(perPeerRatePerSecond), perPeerBurst)
		r.limiters[nodeID] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

func (r *rateLimiters) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, nodeID)
}
