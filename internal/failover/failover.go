// Package failover implements Emergency Failover (spec §4.8 / C8): when a
// microblock pipeline misses its elected producer's slot, an emergency
// replacement is selected from the same candidate set, the change is
// broadcast and deduplicated network-wide, and the missed producer's
// reputation takes a MissPenalty hit, escalating to jailing after
// CriticalMissCount misses within one epoch.
package failover

import (
	"strconv"
	"sync"
	"time"

	"github.com/qnet-project/qnet-core/internal/cache"
	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/internal/selection"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// emergencyProducerDomain is the literal domain-separation string for the
// emergency replacement seed (spec §4.8 step 3), keeping it distinct from
// the ordinary producer-selection and validator-sampling hashes.
const emergencyProducerDomain = "emergency_producer_"

// EmergencyChangeTTL bounds how long a given (height, missed producer)
// emergency change is remembered for deduplication, so a retransmitted
// announcement from a slow peer never re-triggers jailing twice (spec
// §4.8 dedup).
const EmergencyChangeTTL = 5 * time.Minute

// CriticalMissCount is the number of consecutive missed slots within a
// single producer epoch that escalates a miss from an ordinary reputation
// penalty to a critical-attack jailing (spec §4.8, §4.5 epoch = 30
// blocks).
const CriticalMissCount = 3

// MissPenalty is the reputation-score penalty applied for an ordinary
// missed slot (spec §4.8).
const MissPenalty = -5.0

// EmergencyChange records one emergency producer substitution, broadcast
// to the network so every node converges on the same replacement.
type EmergencyChange struct {
	Height         uint64    `json:"height"`
	MissedProducer string    `json:"missed_producer"`
	Replacement    string    `json:"replacement"`
	Timestamp      int64     `json:"timestamp"`
}

// Manager tracks consecutive misses per node within the current epoch and
// deduplicates emergency change announcements.
type Manager struct {
	ledger *reputation.Ledger

	mu     sync.Mutex
	misses map[string]epochMissCount

	seen *cache.EpochCache[struct{}]
}

type epochMissCount struct {
	epoch uint64
	count int
}

// NewManager creates a failover Manager backed by ledger for reputation
// side effects.
func NewManager(ledger *reputation.Ledger) *Manager {
	return &Manager{
		ledger: ledger,
		misses: make(map[string]epochMissCount),
		seen:   cache.NewEpochCache[struct{}](EmergencyChangeTTL),
	}
}

// dedupKey identifies one emergency change for the purposes of
// suppressing duplicate jailing from retransmitted announcements.
func dedupKey(height uint64, missed string) string {
	return missed + "@" + strconv.FormatUint(height, 10)
}

// ElectReplacement selects an emergency replacement producer from
// candidates, excluding the node that just missed its slot. Determinism
// is derived purely from (missedProducer, height) via the literal
// "emergency_producer_" domain string — never from chain-tip state such
// as previous_hash — so every node reaches the same replacement without
// depending on which microblocks it has already seen (spec §4.8 step 3;
// §9 Design Notes: "derive determinism purely from (round_id,
// candidate_set)").
func ElectReplacement(candidates []selection.Candidate, missedProducer string, height uint64) (selection.Candidate, bool) {
	filtered := make([]selection.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.NodeID == missedProducer {
			continue
		}
		filtered = append(filtered, c)
	}
	seed := crypto.HashConcatBytes(
		[]byte(emergencyProducerDomain),
		[]byte(missedProducer),
		[]byte(strconv.FormatUint(height, 10)),
	)
	return selection.SelectProducer(filtered, seed)
}

// RecordMiss applies the reputation penalty for a missed slot and returns
// true if this was the node's CriticalMissCount-th consecutive miss
// within its current producer epoch, signaling a critical-attack jailing
// is warranted (spec §4.8).
func (m *Manager) RecordMiss(nodeID string, height uint64) (critical bool) {
	epoch := types.EpochOf(height)

	m.mu.Lock()
	entry := m.misses[nodeID]
	if entry.epoch != epoch {
		entry = epochMissCount{epoch: epoch, count: 0}
	}
	entry.count++
	m.misses[nodeID] = entry
	count := entry.count
	m.mu.Unlock()

	m.ledger.Update(nodeID, MissPenalty)

	if count >= CriticalMissCount {
		m.ledger.Jail(nodeID)
		return true
	}
	return false
}

// ResetMisses clears a node's consecutive-miss counter, called once it
// successfully produces a slot again.
func (m *Manager) ResetMisses(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.misses, nodeID)
}

// Announce records height/missedProducer as having already triggered an
// emergency change, returning false if it was already seen (so the
// caller can skip re-jailing and re-broadcasting).
func (m *Manager) Announce(height uint64, missedProducer string) bool {
	key := dedupKey(height, missedProducer)
	if _, _, ok := m.seen.Get(key); ok {
		return false
	}
	m.seen.Set(key, struct{}{})
	return true
}
