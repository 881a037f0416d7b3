package p2p

import (
	"time"

	"github.com/qnet-project/qnet-core/internal/cache"
	"github.com/qnet-project/qnet-core/internal/errs"
	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/pkg/crypto"
)

// validatedPeersTTL bounds how long the cached "validated peers" snapshot
// (used by producer/validator candidate selection) is trusted before a
// fresh read is forced (spec §5 Design Notes: global mutable caches).
const validatedPeersTTL = 10 * time.Second

// Fabric is the Peer Fabric (C3): the dual index, K-bucket view,
// admission pipeline, per-peer rate limiters, and the validated-peers
// cache that producer selection and consensus read from.
type Fabric struct {
	selfID string

	index   *dualIndex
	buckets *BucketTable
	limits  *rateLimiters
	admit   *admission

	validated *cache.EpochCache[[]PeerInfo]
}

// NewFabric creates a Peer Fabric for the local node identified by
// selfID.
func NewFabric(selfID string, envelope *crypto.Envelope, rep *reputation.Ledger) *Fabric {
	return &Fabric{
		selfID:    selfID,
		index:     newDualIndex(),
		buckets:   NewBucketTable(selfID),
		limits:    newRateLimiters(),
		admit:     newAdmission(envelope, rep),
		validated: cache.NewEpochCache[[]PeerInfo](validatedPeersTTL),
	}
}

// Challenge issues an admission challenge for a candidate peer.
func (f *Fabric) Challenge(nodeID string) (string, error) {
	return f.admit.Challenge(nodeID)
}

// Admit validates a candidate's signed challenge response and, on
// success, adds it to the index and K-bucket table. The candidate is
// still rejected if its reputation loses the bucket's eviction contest
// (spec §4.3 K-bucket eviction).
func (f *Fabric) Admit(info PeerInfo, sig crypto.Signature) error {
	if err := f.admit.Admit(info, sig); err != nil {
		return err
	}
	if !f.add(info) {
		return errs.New(errs.Forbidden, "peer's bucket is full and its reputation does not exceed the weakest current member")
	}
	return nil
}

// AdmitGenesis bypasses the challenge flow for a Genesis bootstrap peer.
func (f *Fabric) AdmitGenesis(info PeerInfo) error {
	if err := f.admit.AdmitGenesis(info); err != nil {
		return err
	}
	if !f.add(info) {
		return errs.New(errs.Forbidden, "genesis peer's bucket is full and its reputation does not exceed the weakest current member")
	}
	return nil
}

// add inserts info into the dual index and its K-bucket, gated on the
// bucket's reputation-eviction rule. Reports whether the peer was
// actually admitted.
func (f *Fabric) add(info PeerInfo) bool {
	rep := f.admit.reputation.Get(info.NodeID)
	if !f.buckets.Add(info.NodeID, rep) {
		return false
	}
	info.LastSeen = time.Now()
	f.index.Put(info)
	f.validated.Bump()
	return true
}

// Touch refreshes a known peer's LastSeen timestamp without re-running
// admission (e.g. on any successfully verified inbound message).
func (f *Fabric) Touch(nodeID string) {
	info, ok := f.index.GetByID(nodeID)
	if !ok {
		return
	}
	info.LastSeen = time.Now()
	f.index.Put(info)
}

// Remove evicts a peer from every index (e.g. on ban or prolonged
// silence).
func (f *Fabric) Remove(nodeID string) {
	f.index.Remove(nodeID)
	f.buckets.Remove(nodeID)
	f.limits.Remove(nodeID)
	f.validated.Bump()
}

// AllowMessage checks the per-peer rate limiter for an inbound message
// from nodeID (spec §4.3 rate limiting).
func (f *Fabric) AllowMessage(nodeID string) bool {
	return f.limits.Allow(nodeID)
}

// Get returns the peer record for nodeID, if known.
func (f *Fabric) Get(nodeID string) (PeerInfo, bool) {
	return f.index.GetByID(nodeID)
}

// GetByAddress returns the peer record for address, if known.
func (f *Fabric) GetByAddress(address string) (PeerInfo, bool) {
	return f.index.GetByAddress(address)
}

// Count returns the total number of known peers.
func (f *Fabric) Count() int {
	return f.index.Len()
}

// IsLockfree reports whether the dual index has auto-scaled into its
// lock-reduced mode.
func (f *Fabric) IsLockfree() bool {
	return f.index.IsLockfree()
}

// ValidatedPeers returns the cached set of admitted peers eligible for
// candidacy (every currently-known peer; reputation/kind filtering is
// layered on top by internal/selection), recomputing and caching a fresh
// snapshot if the epoch was bumped or the TTL expired.
func (f *Fabric) ValidatedPeers() []PeerInfo {
	if cached, _, ok := f.validated.Get("all"); ok {
		return cached
	}
	all := f.index.All()
	f.validated.Set("all", all)
	return all
}

// SelfID returns the local node's identity.
func (f *Fabric) SelfID() string { return f.selfID }
