package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/qnet-project/qnet-core/internal/api"
	"github.com/qnet-project/qnet-core/internal/consensus"
	"github.com/qnet-project/qnet-core/internal/errs"
	"github.com/qnet-project/qnet-core/internal/failover"
	qlog "github.com/qnet-project/qnet-core/internal/log"
	"github.com/qnet-project/qnet-core/internal/p2p"
	"github.com/qnet-project/qnet-core/internal/selection"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// Height implements api.Handler.
func (n *Node) Height(ctx context.Context) uint64 {
	return n.driver.Height()
}

// Microblock implements api.Handler.
func (n *Node) Microblock(ctx context.Context, height uint64) ([]byte, bool) {
	mb, ok, err := n.chain.GetMicroblock(height)
	if err != nil || !ok {
		return nil, false
	}
	raw, err := json.Marshal(mb)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Peers implements api.Handler.
func (n *Node) Peers(ctx context.Context) []api.PeerAddress {
	peers := n.fabric.ValidatedPeers()
	out := make([]api.PeerAddress, len(peers))
	for i, p := range peers {
		out[i] = api.PeerAddress{Address: p.Address}
	}
	return out
}

// RespondToChallenge implements api.Handler: signs the challenge bytes
// with the node's own envelope key (spec §4.4 admission challenge).
func (n *Node) RespondToChallenge(ctx context.Context, challengeHex string) (string, string, error) {
	raw, err := hex.DecodeString(challengeHex)
	if err != nil {
		return "", "", errs.Wrap(errs.InvalidFormat, "challenge is not valid hex", err)
	}
	sig, err := n.envelope.Sign(n.selfID, raw)
	if err != nil {
		return "", "", err
	}
	pub, _ := n.envelope.PublicKeyFor(n.selfID)
	return hex.EncodeToString(sig), hex.EncodeToString(pub), nil
}

// Healthy implements api.Handler.
func (n *Node) Healthy(ctx context.Context) bool {
	return true
}

// HandleMessage implements api.Handler, dispatching each NetworkMessage
// variant (spec §6) to the owning component.
func (n *Node) HandleMessage(ctx context.Context, msg api.NetworkMessage) error {
	switch msg.Type {
	case api.MsgTransaction:
		tx := msg.Transaction.Data
		n.pool.Insert(tx, crypto.Hash(tx))
		return nil

	case api.MsgHealthPing:
		n.fabric.Touch(msg.HealthPing.From)
		return nil

	case api.MsgPeerDiscovery:
		n.fabric.Touch(msg.PeerDiscovery.RequestingNode)
		return nil

	case api.MsgConsensusCommit:
		return n.handleCommit(msg.ConsensusCommit)

	case api.MsgConsensusReveal:
		return n.handleReveal(msg.ConsensusReveal)

	case api.MsgEmergencyProducerChange:
		n.handleEmergencyChange(msg.EmergencyProducerChange)
		return nil

	case api.MsgReputationSync:
		n.handleReputationSync(msg.ReputationSync)
		return nil

	case api.MsgBlock, api.MsgStateSnapshot, api.MsgRequestBlocks, api.MsgBlocksBatch,
		api.MsgSyncStatus, api.MsgRequestConsensusState, api.MsgConsensusState:
		// Accepted and dropped: nothing in the node consumes these
		// variants, so the peer surface only acknowledges them rather
		// than rejecting them.
		return nil

	default:
		return errs.New(errs.InvalidFormat, "unrecognized network message type")
	}
}

// candidateIDs extracts the NodeID of each candidate, in order.
func candidateIDs(candidates []selection.Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.NodeID
	}
	return ids
}

func (n *Node) getOrCreateRound(roundID uint64) *consensus.Round {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.rounds[roundID]; ok {
		return r
	}
	candidates := n.candidates(roundID)
	macroHeight := roundID / types.MacroblockSpan
	initiator, ok := n.elector.Elect(roundID, candidates)
	initiatorID := n.selfID
	if ok {
		initiatorID = initiator.NodeID
	}
	r := consensus.NewRound(macroHeight, initiatorID, candidateIDs(candidates))
	n.rounds[roundID] = r
	return r
}

func (n *Node) handleCommit(p *api.ConsensusCommitPayload) error {
	round := n.getOrCreateRound(p.RoundID)
	var hash types.Hash
	copy(hash[:], p.CommitHash)
	commit := types.Commit{
		RoundID:    p.RoundID,
		NodeID:     p.NodeID,
		CommitHash: hash,
		Timestamp:  p.Timestamp,
		Signature:  p.Signature,
	}
	if err := round.AddCommit(n.envelope, commit); err != nil {
		qlog.Consensus.Warn().Err(err).Str("node_id", p.NodeID).Msg("rejected consensus commit")
		return err
	}
	return nil
}

func (n *Node) handleReveal(p *api.ConsensusRevealPayload) error {
	n.mu.Lock()
	round, ok := n.rounds[p.RoundID]
	n.mu.Unlock()
	if !ok {
		return errs.New(errs.InvalidFormat, "reveal for unknown round")
	}

	var nonce [32]byte
	copy(nonce[:], p.Nonce)
	reveal := types.Reveal{
		RoundID:    p.RoundID,
		NodeID:     p.NodeID,
		RevealData: p.RevealData,
		Nonce:      nonce,
		Timestamp:  p.Timestamp,
	}
	if err := round.AddReveal(reveal); err != nil {
		qlog.Consensus.Warn().Err(err).Str("node_id", p.NodeID).Msg("rejected consensus reveal")
		return err
	}
	return nil
}

func (n *Node) handleEmergencyChange(p *api.EmergencyProducerChangePayload) {
	if !n.failMgr.Announce(p.BlockHeight, p.FailedProducer) {
		return // already processed, dedup (spec §8 EmergencyProducerChange dedup)
	}
	n.failMgr.RecordMiss(p.FailedProducer, p.BlockHeight)
}

func (n *Node) handleReputationSync(p *api.ReputationSyncPayload) {
	for _, u := range p.ReputationUpdates {
		n.ledger.Sync(u.NodeID, u.Score)
	}
}

// onMacroblock is invoked by the pipeline driver every MacroblockSpan
// microblocks (spec §4.7). It opens the round's commit phase locally,
// submits this node's own commit into it, and drives it through to
// finalization on its own timers; commit/reveal traffic from peers
// arrives concurrently via HandleMessage.
func (n *Node) onMacroblock(ctx context.Context, macroHeight uint64, microHashes [types.MacroblockSpan]types.Hash, previousMacroHash types.Hash) {
	roundID := macroHeight * types.MacroblockSpan
	round := n.getOrCreateRound(roundID)
	qlog.Consensus.Info().
		Uint64("round_id", round.RoundID).
		Str("initiator", round.Initiator).
		Msg("opened macroblock consensus round")

	n.submitOwnCommit(round)
	go n.driveRound(ctx, round, microHashes, previousMacroHash)
}

// submitOwnCommit generates this node's own nonce, reveal data, and
// commit_hash for round, stores the (nonce, reveal_data) pair for later
// reveal, submits the commit to the local round, and broadcasts it to
// peers over C3 (spec §4.7 Phase 1: "Generate own nonce..., own reveal
// data, commit_hash...; Store (nonce, reveal_data) keyed by own id; submit
// commit to local engine; broadcast over C3").
func (n *Node) submitOwnCommit(round *consensus.Round) {
	oc, err := consensus.NewOwnCommit(round.RoundID, n.selfID)
	if err != nil {
		qlog.Consensus.Error().Err(err).Uint64("round_id", round.RoundID).Msg("failed to generate own commit")
		return
	}

	sig, err := n.envelope.Sign(n.selfID, oc.CommitHash[:])
	if err != nil {
		qlog.Consensus.Error().Err(err).Uint64("round_id", round.RoundID).Msg("failed to sign own commit")
		return
	}

	commit := types.Commit{
		RoundID:    round.RoundID,
		NodeID:     n.selfID,
		CommitHash: oc.CommitHash,
		Timestamp:  time.Now().Unix(),
		Signature:  sig,
	}
	if err := round.AddCommit(n.envelope, commit); err != nil {
		qlog.Consensus.Warn().Err(err).Uint64("round_id", round.RoundID).Msg("failed to add own commit locally")
		return
	}

	n.mu.Lock()
	n.ownCommits[round.RoundID] = oc
	n.mu.Unlock()

	n.broadcastMessage(api.NetworkMessage{
		Type: api.MsgConsensusCommit,
		ConsensusCommit: &api.ConsensusCommitPayload{
			RoundID:    commit.RoundID,
			NodeID:     commit.NodeID,
			CommitHash: oc.CommitHash[:],
			Signature:  sig,
			Timestamp:  commit.Timestamp,
		},
	})
}

// submitOwnReveal builds this node's own reveal from the (nonce,
// reveal_data) pair stored by submitOwnCommit, submits it to the local
// round, and broadcasts it to peers over C3 (spec §4.7 Phase 2). A no-op
// if this node never committed to round (e.g. it wasn't a candidate).
func (n *Node) submitOwnReveal(round *consensus.Round) {
	n.mu.Lock()
	oc, ok := n.ownCommits[round.RoundID]
	delete(n.ownCommits, round.RoundID)
	n.mu.Unlock()
	if !ok {
		return
	}

	reveal := types.Reveal{
		RoundID:    round.RoundID,
		NodeID:     n.selfID,
		RevealData: oc.RevealData,
		Nonce:      oc.Nonce,
		Timestamp:  time.Now().Unix(),
	}
	if err := round.AddReveal(reveal); err != nil {
		qlog.Consensus.Warn().Err(err).Uint64("round_id", round.RoundID).Msg("failed to add own reveal locally")
		return
	}

	n.broadcastMessage(api.NetworkMessage{
		Type: api.MsgConsensusReveal,
		ConsensusReveal: &api.ConsensusRevealPayload{
			RoundID:    reveal.RoundID,
			NodeID:     reveal.NodeID,
			RevealData: reveal.RevealData,
			Nonce:      reveal.Nonce[:],
			Timestamp:  reveal.Timestamp,
		},
	})
}

// broadcastMessage encodes msg and fans it out to the peers closest to
// this node over the Peer Fabric's broadcast mechanism (spec §4.3
// broadcast, §6 wire format).
func (n *Node) broadcastMessage(msg api.NetworkMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		qlog.Consensus.Error().Err(err).Msg("failed to marshal broadcast message")
		return
	}
	for _, sendErr := range n.fabric.Broadcast(context.Background(), payload, sendNetworkMessage) {
		qlog.Consensus.Warn().Err(sendErr).Msg("broadcast delivery to a peer failed")
	}
}

func sendNetworkMessage(ctx context.Context, peer p2p.PeerInfo, payload []byte) error {
	return api.SendMessage(ctx, peer.Address, payload)
}

// driveRound advances round through its commit and reveal timeouts,
// submitting this node's own reveal at the phase transition, and
// finalizes it into a macroblock once enough reveals have landed (spec
// §4.7 Phase 1-3), persisting the result and chaining it into the
// pipeline's next round.
func (n *Node) driveRound(ctx context.Context, round *consensus.Round, microHashes [types.MacroblockSpan]types.Hash, previousMacroHash types.Hash) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(consensus.CommitPhaseTimeout):
	}
	if err := round.AdvanceToReveal(); err != nil {
		qlog.Consensus.Warn().Uint64("round_id", round.RoundID).Err(err).Msg("round failed at commit phase")
		return
	}
	n.submitOwnReveal(round)

	select {
	case <-ctx.Done():
		return
	case <-time.After(consensus.RevealPhaseTimeout):
	}

	candidates := n.candidates(round.RoundID + types.MacroblockSpan)
	nextRoundID := round.RoundID + types.MacroblockSpan
	nextLeader, ok := n.elector.Elect(nextRoundID, candidates)
	nextLeaderID := n.selfID
	if ok {
		nextLeaderID = nextLeader.NodeID
	}

	mb, err := round.Finalize(microHashes, previousMacroHash, nextLeaderID)
	if err != nil {
		qlog.Consensus.Warn().Uint64("round_id", round.RoundID).Err(err).Msg("round failed to finalize")
		return
	}

	if err := n.chain.PutMacroblock(mb); err != nil {
		qlog.Consensus.Error().Uint64("round_id", round.RoundID).Err(err).Msg("failed to persist finalized macroblock")
		return
	}
	n.driver.RecordMacroblock(mb)

	n.mu.Lock()
	delete(n.rounds, round.RoundID)
	n.mu.Unlock()

	qlog.Consensus.Info().
		Uint64("round_id", round.RoundID).
		Uint64("macro_height", mb.Height).
		Str("next_leader", nextLeaderID).
		Msg("finalized macroblock")
}

// onFailover is invoked by the pipeline driver when the elected producer
// misses its slot (spec §4.8).
func (n *Node) onFailover(ctx context.Context, height uint64, missedProducer string) (string, bool) {
	if !n.failMgr.Announce(height, missedProducer) {
		return "", false
	}
	if n.failMgr.RecordMiss(missedProducer, height) {
		qlog.Failover.Warn().Str("node_id", missedProducer).Uint64("height", height).
			Msg("critical consecutive-miss jailing")
	}

	replacement, ok := failover.ElectReplacement(n.candidates(height), missedProducer, height)
	if !ok {
		return "", false
	}
	return replacement.NodeID, true
}
