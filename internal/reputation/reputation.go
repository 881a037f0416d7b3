// Package reputation implements the Reputation Ledger (spec §4.2 / C2): a
// per-node trust score in [0, 100] that gates candidacy for production,
// consensus participation, and peer admission. Scores decay toward the
// Genesis floor over time and are nudged by sync messages from peers
// rather than overwritten outright, so no single peer can unilaterally
// crash another node's standing.
package reputation

import (
	"sync"
	"time"

	"github.com/qnet-project/qnet-core/pkg/types"
)

const (
	// GenesisFloor is the initial and decay-target score for Genesis
	// bootstrap nodes (spec §4.2).
	GenesisFloor = 70.0

	// DefaultInitial is the starting score assigned to every newly seen
	// node, Genesis or not (spec §4.2: "default newly-seen node is 70.0,
	// the consensus threshold").
	DefaultInitial = 70.0

	// MinScore and MaxScore bound every stored reputation value.
	MinScore = 0.0
	MaxScore = 100.0

	// BanThreshold is the score below which a node is forcibly removed:
	// excluded from every candidate set and admission pipeline (spec §3
	// Peer record invariants).
	BanThreshold = 10.0

	// CandidacyThreshold is the score below which a node, while not yet
	// banned, is still excluded from the producer/validator candidate set
	// (spec §4.2, §4.5 Step 2).
	CandidacyThreshold = 70.0

	// decayInterval is the cadence at which ApplyDecay nudges every score
	// toward its target.
	decayInterval = 1 * time.Hour

	// decayRate is the fraction of the remaining distance to target closed
	// on each ApplyDecay tick.
	decayRate = 0.05

	// syncSelfWeight and syncPeerWeight are the weighted-average blend
	// used when merging a peer-reported score into the local ledger
	// (spec §4.2: local observation dominates, remote reports nudge).
	syncSelfWeight = 0.7
	syncPeerWeight = 0.3

	// syncDampingThreshold caps how far a single sync message may move a
	// score in one application, preventing a single malicious report from
	// swinging a node's standing.
	syncDampingThreshold = 1.0
)

type entry struct {
	score    float64
	jailedAt time.Time
	jailed   bool
}

// Ledger is the Reputation Ledger: a concurrency-safe map from node_id to
// trust score, with decay and jailing. The zero value is not usable; use
// New.
type Ledger struct {
	mu      sync.RWMutex
	scores  map[string]*entry
	lastTick time.Time
}

// New creates an empty Reputation Ledger.
func New() *Ledger {
	return &Ledger{
		scores:   make(map[string]*entry),
		lastTick: time.Now(),
	}
}

// Get returns nodeID's current score, or DefaultInitial (or GenesisFloor
// for Genesis node ids) if nodeID has never been observed.
func (l *Ledger) Get(nodeID string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.scores[nodeID]; ok {
		return e.score
	}
	return initialScore(nodeID)
}

// Set overwrites nodeID's score outright, clamped to [MinScore, MaxScore].
// Used at admission time and by Genesis initialization, never by ordinary
// sync traffic (see Update).
func (l *Ledger) Set(nodeID string, score float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryLocked(nodeID)
	e.score = clamp(score)
}

// Update applies a local delta to nodeID's score (e.g. +1 for a valid
// microblock produced, -5 for a failed consensus round), clamped to
// [MinScore, MaxScore].
func (l *Ledger) Update(nodeID string, delta float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryLocked(nodeID)
	e.score = clamp(e.score + delta)
}

// Sync merges a peer-reported score for nodeID into the local ledger via a
// damped weighted average: the local score carries syncSelfWeight, the
// reported score carries syncPeerWeight, and the resulting movement is
// capped at syncDampingThreshold so no single report can swing the ledger
// far in one step (spec §4.2).
func (l *Ledger) Sync(nodeID string, reported float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryLocked(nodeID)

	blended := e.score*syncSelfWeight + reported*syncPeerWeight
	delta := blended - e.score
	if delta > syncDampingThreshold {
		delta = syncDampingThreshold
	} else if delta < -syncDampingThreshold {
		delta = -syncDampingThreshold
	}
	e.score = clamp(e.score + delta)
}

// ApplyDecay nudges every stored score a fraction of the way toward its
// target (GenesisFloor for Genesis ids, DefaultInitial otherwise),
// rate-limited to decayInterval so repeated calls within the same window
// are no-ops. Intended to be driven by a background ticker.
func (l *Ledger) ApplyDecay(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastTick) < decayInterval {
		return
	}
	l.lastTick = now

	for nodeID, e := range l.scores {
		if e.jailed {
			continue
		}
		target := initialScore(nodeID)
		e.score = clamp(e.score + (target-e.score)*decayRate)
	}
}

// Jail marks nodeID as jailed: its score is driven to MinScore and held
// there by ApplyDecay until Unjail is called (spec §4.8 failover/attack
// response side effects).
func (l *Ledger) Jail(nodeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryLocked(nodeID)
	e.jailed = true
	e.jailedAt = time.Now()
	e.score = MinScore
}

// Unjail clears nodeID's jailed status without restoring its score; the
// node re-enters normal decay from MinScore.
func (l *Ledger) Unjail(nodeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.scores[nodeID]; ok {
		e.jailed = false
	}
}

// IsJailed reports whether nodeID is currently jailed.
func (l *Ledger) IsJailed(nodeID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.scores[nodeID]
	return ok && e.jailed
}

// IsBanned reports whether nodeID's score is below BanThreshold, or it is
// jailed. Banned nodes are excluded from every candidate set.
func (l *Ledger) IsBanned(nodeID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.scores[nodeID]
	if !ok {
		return false
	}
	return e.jailed || e.score < BanThreshold
}

// GetAll returns a snapshot copy of every known node's score.
func (l *Ledger) GetAll() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.scores))
	for id, e := range l.scores {
		out[id] = e.score
	}
	return out
}

func (l *Ledger) entryLocked(nodeID string) *entry {
	e, ok := l.scores[nodeID]
	if !ok {
		e = &entry{score: initialScore(nodeID)}
		l.scores[nodeID] = e
	}
	return e
}

func initialScore(nodeID string) float64 {
	if types.IsGenesisNodeID(nodeID) {
		return GenesisFloor
	}
	return DefaultInitial
}

func clamp(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
