// Package consensus implements Macroblock Consensus (spec §4.7 / C7): a
// two-phase commit-reveal Byzantine round run every MacroblockSpan
// microblocks, finalizing a Macroblock once at least the Byzantine
// threshold of participants have revealed matching commitments.
package consensus

import (
	"sort"
	"time"

	"github.com/qnet-project/qnet-core/internal/errs"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// Phase identifies where a Round is in its commit-reveal lifecycle.
type Phase int

const (
	PhaseCommit Phase = iota
	PhaseReveal
	PhaseFinalized
	PhaseFailed
)

const (
	// CommitPhaseTimeout and RevealPhaseTimeout bound how long a round
	// stays in each phase; a phase that ends short of the Byzantine
	// threshold fails the round (spec §4.7 phase timeouts).
	CommitPhaseTimeout = 15 * time.Second
	RevealPhaseTimeout = 15 * time.Second
)

// ByzantineThreshold returns the minimum number of participants that must
// reveal matching commitments for a round of n candidates to finalize:
// ceil(2n/3) (spec §4.7).
func ByzantineThreshold(n int) int {
	return (2*n + 2) / 3
}

// Round is one in-progress macroblock consensus round, keyed by RoundID
// (= macroHeight * MacroblockSpan, per spec §3).
type Round struct {
	RoundID     uint64
	Initiator   string
	Candidates  []string
	Phase       Phase
	StartedAt   time.Time

	commits map[string]types.Commit
	reveals map[string]types.Reveal
}

// NewRound starts a round for the given macroblock height, with
// initiator elected deterministically (the caller supplies the elected
// initiator — typically via internal/selection over the same candidate
// set — so every node agrees on who opens phase 1).
func NewRound(macroHeight uint64, initiator string, candidates []string) *Round {
	return &Round{
		RoundID:    macroHeight * types.MacroblockSpan,
		Initiator:  initiator,
		Candidates: candidates,
		Phase:      PhaseCommit,
		StartedAt:  time.Now(),
		commits:    make(map[string]types.Commit),
		reveals:    make(map[string]types.Reveal),
	}
}

func (r *Round) isCandidate(nodeID string) bool {
	for _, c := range r.Candidates {
		if c == nodeID {
			return true
		}
	}
	return false
}

// AddCommit records a phase-1 commitment, verifying its signature. Commits
// are only accepted during PhaseCommit and only from recognized
// candidates.
func (r *Round) AddCommit(envelope *crypto.Envelope, commit types.Commit) error {
	if r.Phase != PhaseCommit {
		return errs.New(errs.ByzantineSafetyViolation, "commit received outside commit phase")
	}
	if !r.isCandidate(commit.NodeID) {
		return errs.New(errs.Forbidden, "commit from a non-candidate node")
	}
	if commit.RoundID != r.RoundID {
		return errs.New(errs.InvalidFormat, "commit round_id mismatch")
	}
	if !envelope.Verify(commit.NodeID, commit.CommitHash[:], commit.Signature) {
		return errs.New(errs.InvalidSignature, "commit signature invalid")
	}
	r.commits[commit.NodeID] = commit
	return nil
}

// AdvanceToReveal transitions the round from PhaseCommit to PhaseReveal.
// Returns an error if fewer than ByzantineThreshold commits have been
// collected (spec §4.7: insufficient participation fails the round
// rather than finalizing with a stale quorum).
func (r *Round) AdvanceToReveal() error {
	if r.Phase != PhaseCommit {
		return errs.New(errs.ByzantineSafetyViolation, "round is not in commit phase")
	}
	threshold := ByzantineThreshold(len(r.Candidates))
	if len(r.commits) < threshold {
		r.Phase = PhaseFailed
		return errs.New(errs.ConsensusInsufficientParticipants, "fewer commits than the Byzantine threshold")
	}
	r.Phase = PhaseReveal
	r.StartedAt = time.Now()
	return nil
}

// AddReveal records a phase-2 reveal, checking it matches the
// corresponding commit hash: H(reveal_data || nonce) == commit_hash
// (spec §4.7 Phase 2 — the core commit-reveal binding).
func (r *Round) AddReveal(reveal types.Reveal) error {
	if r.Phase != PhaseReveal {
		return errs.New(errs.ByzantineSafetyViolation, "reveal received outside reveal phase")
	}
	commit, ok := r.commits[reveal.NodeID]
	if !ok {
		return errs.New(errs.Forbidden, "reveal from a node with no prior commit")
	}
	if reveal.RoundID != r.RoundID {
		return errs.New(errs.InvalidFormat, "reveal round_id mismatch")
	}
	want := crypto.HashConcatBytes(reveal.RevealData, reveal.Nonce[:])
	if want != commit.CommitHash {
		return errs.New(errs.ByzantineSafetyViolation, "reveal does not match its commitment")
	}
	r.reveals[reveal.NodeID] = reveal
	return nil
}

// Finalize builds the Macroblock for this round if at least the
// Byzantine threshold of candidates revealed matching data, combining the
// 90 microblock hashes with the reveal data to produce the state root
// (spec §4.7 Phase 3 / finalize).
func (r *Round) Finalize(microHashes [types.MacroblockSpan]types.Hash, previousHash types.Hash, nextLeader string) (*types.Macroblock, error) {
	if r.Phase != PhaseReveal {
		return nil, errs.New(errs.ByzantineSafetyViolation, "round is not in reveal phase")
	}
	threshold := ByzantineThreshold(len(r.Candidates))
	if len(r.reveals) < threshold {
		r.Phase = PhaseFailed
		return nil, errs.New(errs.ConsensusInsufficientParticipants, "fewer reveals than the Byzantine threshold")
	}

	stateRoot := r.combineStateRoot(microHashes)

	commits := make([]types.Commit, 0, len(r.commits))
	for _, c := range r.commits {
		commits = append(commits, c)
	}
	reveals := make([]types.Reveal, 0, len(r.reveals))
	for _, rv := range r.reveals {
		reveals = append(reveals, rv)
	}

	r.Phase = PhaseFinalized
	return &types.Macroblock{
		Height:      r.RoundID / types.MacroblockSpan,
		Timestamp:   time.Now().Unix(),
		MicroHashes: microHashes,
		StateRoot:   stateRoot,
		Consensus: types.ConsensusData{
			Commits:    commits,
			Reveals:    reveals,
			NextLeader: nextLeader,
		},
		PreviousHash: previousHash,
	}, nil
}

// combineStateRoot folds every revealed payload together with the 90
// microblock hashes into a single deterministic state root: every honest
// node that collected the same reveal set computes the same root.
func (r *Round) combineStateRoot(microHashes [types.MacroblockSpan]types.Hash) types.Hash {
	parts := make([][]byte, 0, len(microHashes)+len(r.reveals))
	for _, h := range microHashes {
		parts = append(parts, h[:])
	}
	// Reveal data is folded in NodeID order for determinism regardless of
	// arrival order.
	ids := make([]string, 0, len(r.reveals))
	for id := range r.reveals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		parts = append(parts, r.reveals[id].RevealData)
	}
	return crypto.HashConcatBytes(parts...)
}

// Expired reports whether the round has been in its current phase longer
// than the applicable timeout (spec §4.7 phase timeouts).
func (r *Round) Expired(now time.Time) bool {
	switch r.Phase {
	case PhaseCommit:
		return now.Sub(r.StartedAt) > CommitPhaseTimeout
	case PhaseReveal:
		return now.Sub(r.StartedAt) > RevealPhaseTimeout
	default:
		return false
	}
}
