// Package p2p implements the Peer Fabric (spec §4.3 / C3): peer
// bookkeeping with a dual address/id index, a K-bucket view for
// XOR-distance-aware gossip fanout, an auto-scaling storage mode that
// switches from a plain map to a swiss-table map (both guarded by the
// index's RWMutex) under load,
// admission, peer exchange, per-peer rate limiting, and broadcast.
package p2p

import (
	"time"

	"github.com/qnet-project/qnet-core/pkg/types"
)

// PeerInfo is everything the fabric knows about one peer.
type PeerInfo struct {
	NodeID    string        `json:"node_id"`
	Address   string        `json:"address"` // host:port
	Kind      types.NodeKind `json:"kind"`
	PublicKey []byte        `json:"public_key"`
	LastSeen  time.Time     `json:"last_seen"`
	Region    string        `json:"region,omitempty"`
}

// IsStale reports whether the peer hasn't been heard from within maxAge.
func (p PeerInfo) IsStale(maxAge time.Duration) bool {
	return time.Since(p.LastSeen) > maxAge
}
