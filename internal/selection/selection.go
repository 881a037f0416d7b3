// Package selection implements deterministic Producer Selection (spec
// §4.5 / C5): every node computes the same candidate set and the same
// SHA3-256, domain-separated seed from it, independently, so no explicit
// leader-announcement round is ever needed.
package selection

import (
	"encoding/binary"
	"sort"
	"strconv"

	"github.com/qnet-project/qnet-core/internal/cache"
	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// MaxCandidates bounds the candidate set considered for any single
// selection, keeping the seeded sample computation O(1000) regardless of
// total network size (spec §4.5).
const MaxCandidates = 1000

// producerCacheRoundTTL bounds how many producer epochs a cached election
// result is trusted for before recomputation is forced (spec §5 Design
// Notes: evict entries older than 3 rounds).
const producerCacheRoundTTL = 3

// producerSelectionDomain and validatorSamplingDomain are the literal
// domain-separation strings the spec mandates for the two SHA3-256 seed
// constructions this package performs, so neither hash can ever be
// reinterpreted as the other or as a commit/nonce hash (spec §4.5 Steps
// 2-3).
const (
	producerSelectionDomain = "microblock_producer_selection_"
	validatorSamplingDomain = "validator_sampling_"
)

// Candidate is one entry in the producer/validator candidate set.
type Candidate struct {
	NodeID     string
	Reputation float64
	Kind       types.NodeKind
}

// Phase distinguishes Genesis-era selection (only the five bootstrap
// nodes exist) from Normal operation (spec §4.5).
type Phase int

const (
	PhaseGenesis Phase = iota
	PhaseNormal
)

// BuildCandidates filters peers down to the eligible candidate set: Full
// or Super nodes, at or above the candidacy reputation threshold, never
// banned or jailed. Candidates are kept in the order nodeIDs was given in
// — never re-sorted alphabetically, since any total order that isn't the
// seeded hash order biases producer rotation (spec §4.5 Step 2). Sets
// larger than MaxCandidates are reduced via deterministic_validator_sampling
// instead of truncation, so every node samples the same 1000 regardless of
// total network size.
func BuildCandidates(peers []types.NodeKind, nodeIDs []string, ledger *reputation.Ledger, height uint64) []Candidate {
	var out []Candidate
	for i, id := range nodeIDs {
		kind := peers[i]
		if kind == types.Light {
			continue
		}
		if ledger.IsBanned(id) {
			continue
		}
		rep := ledger.Get(id)
		if rep < reputation.CandidacyThreshold {
			continue
		}
		out = append(out, Candidate{NodeID: id, Reputation: rep, Kind: kind})
	}
	if len(out) > MaxCandidates {
		out = sampleDeterministic(out, types.EpochOf(height))
	}
	return out
}

// sampleDeterministic implements deterministic_validator_sampling (spec
// §4.5 Step 2 / §8 scenario 6): it draws MaxCandidates entries out of
// candidates without replacement, each draw seeded by
// "validator_sampling_" || round || i, then restores the drawn entries'
// original relative order. Two independent runs over the same candidate
// list and round produce a bitwise-identical result; no alphabetical or
// any other re-sort of node_id is ever applied.
func sampleDeterministic(candidates []Candidate, round uint64) []Candidate {
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	picked := make([]int, 0, MaxCandidates)
	for i := 0; i < MaxCandidates; i++ {
		seed := crypto.HashConcatBytes(
			[]byte(validatorSamplingDomain),
			[]byte(strconv.FormatUint(round, 10)),
			[]byte(strconv.Itoa(i)),
		)
		draw := int(binary.BigEndian.Uint64(seed[:8]) % uint64(len(remaining)))
		picked = append(picked, remaining[draw])
		remaining = append(remaining[:draw], remaining[draw+1:]...)
	}

	sort.Ints(picked) // restore original relative order, not node_id order
	out := make([]Candidate, len(picked))
	for i, idx := range picked {
		out[i] = candidates[idx]
	}
	return out
}

// ProducerSeed computes the deterministic producer-selection seed for the
// 30-block epoch starting at round: SHA3-256 over the literal domain
// string, the round index, and the candidate count (spec §4.5 Step 3).
// It deliberately excludes any chain-tip state (e.g. previous_hash) so the
// result is derivable purely from (round, candidate_set), per spec §9
// Design Notes.
func ProducerSeed(round uint64, numCandidates int) types.Hash {
	return crypto.HashConcatBytes(
		[]byte(producerSelectionDomain),
		[]byte(strconv.FormatUint(round, 10)),
		[]byte(strconv.Itoa(numCandidates)),
	)
}

// SelectProducer deterministically picks one candidate using seed reduced
// modulo the candidate count. Every node holding the same candidate set
// and seed picks the same producer without any communication (spec §4.5
// core invariant).
func SelectProducer(candidates []Candidate, seed types.Hash) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	idx := binary.BigEndian.Uint64(seed[:8]) % uint64(len(candidates))
	return candidates[idx], true
}

// Elector caches producer-election results per 30-block epoch so repeated
// lookups within the same epoch are O(1) and every microblock height in
// the epoch resolves to the same producer, evicting entries older than
// producerCacheRoundTTL epochs (spec §5 Design Notes; §3 Epoch glossary:
// "a span of 30 microblocks during which one producer is deterministically
// fixed").
type Elector struct {
	ledger *reputation.Ledger
	cache  *cache.EpochCache[Candidate]
}

// NewElector creates an Elector backed by ledger for reputation checks.
func NewElector(ledger *reputation.Ledger) *Elector {
	return &Elector{
		ledger: ledger,
		cache:  cache.NewEpochCache[Candidate](0), // no TTL; eviction is epoch-based, not time-based
	}
}

// Elect returns the producer for the 30-block epoch containing height,
// given the current candidate set, caching the result per epoch (spec
// §4.5 Step 3). Bump must be called by the caller whenever the candidate
// set changes topology (peer admission/eviction, reputation ban) so stale
// elections are never served past a real change.
func (e *Elector) Elect(height uint64, candidates []Candidate) (Candidate, bool) {
	round := types.EpochOf(height)
	key := cacheKey(round)
	if cached, _, ok := e.cache.Get(key); ok {
		return cached, true
	}

	seed := ProducerSeed(round, len(candidates))
	producer, ok := SelectProducer(candidates, seed)
	if !ok {
		return Candidate{}, false
	}
	e.cache.Set(key, producer)
	e.evictOld(round)
	return producer, true
}

// Bump invalidates every cached election, used on any topology change.
func (e *Elector) Bump() { e.cache.Bump() }

func (e *Elector) evictOld(currentRound uint64) {
	if currentRound < producerCacheRoundTTL {
		return
	}
	e.cache.Delete(cacheKey(currentRound - producerCacheRoundTTL))
}

func cacheKey(round uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, round)
	return string(buf)
}
