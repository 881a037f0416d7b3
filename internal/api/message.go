// Package api implements the plain-HTTP peer-to-peer surface (spec §6):
// the 14 NetworkMessage variants exchanged over POST /api/v1/p2p/message,
// and the handful of query endpoints peers use to probe height, fetch
// microblocks, exchange peer lists, and complete admission challenges.
package api

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the 14 NetworkMessage variants (spec §6).
type MessageType string

const (
	MsgBlock                   MessageType = "Block"
	MsgTransaction              MessageType = "Transaction"
	MsgPeerDiscovery            MessageType = "PeerDiscovery"
	MsgHealthPing               MessageType = "HealthPing"
	MsgStateSnapshot            MessageType = "StateSnapshot"
	MsgConsensusCommit          MessageType = "ConsensusCommit"
	MsgConsensusReveal          MessageType = "ConsensusReveal"
	MsgEmergencyProducerChange  MessageType = "EmergencyProducerChange"
	MsgReputationSync           MessageType = "ReputationSync"
	MsgRequestBlocks            MessageType = "RequestBlocks"
	MsgBlocksBatch              MessageType = "BlocksBatch"
	MsgSyncStatus               MessageType = "SyncStatus"
	MsgRequestConsensusState    MessageType = "RequestConsensusState"
	MsgConsensusState           MessageType = "ConsensusState"
)

// NetworkMessage is the tagged envelope carried in every
// POST /api/v1/p2p/message body: Type selects which of the typed payload
// fields below is populated. Binary fields are base64 via Go's default
// []byte JSON encoding; only one payload field is ever set per message.
type NetworkMessage struct {
	Type MessageType `json:"type"`

	Block                  *BlockPayload                  `json:"block,omitempty"`
	Transaction            *TransactionPayload            `json:"transaction,omitempty"`
	PeerDiscovery          *PeerDiscoveryPayload          `json:"peer_discovery,omitempty"`
	HealthPing             *HealthPingPayload             `json:"health_ping,omitempty"`
	StateSnapshot          *StateSnapshotPayload          `json:"state_snapshot,omitempty"`
	ConsensusCommit        *ConsensusCommitPayload        `json:"consensus_commit,omitempty"`
	ConsensusReveal        *ConsensusRevealPayload        `json:"consensus_reveal,omitempty"`
	EmergencyProducerChange *EmergencyProducerChangePayload `json:"emergency_producer_change,omitempty"`
	ReputationSync         *ReputationSyncPayload         `json:"reputation_sync,omitempty"`
	RequestBlocks          *RequestBlocksPayload          `json:"request_blocks,omitempty"`
	BlocksBatch            *BlocksBatchPayload            `json:"blocks_batch,omitempty"`
	SyncStatus             *SyncStatusPayload             `json:"sync_status,omitempty"`
	RequestConsensusState  *RequestConsensusStatePayload  `json:"request_consensus_state,omitempty"`
	ConsensusState         *ConsensusStatePayload         `json:"consensus_state,omitempty"`
}

// BlockPayload carries a serialized micro- or macroblock.
type BlockPayload struct {
	Height    uint64 `json:"height"`
	Data      []byte `json:"data"`
	BlockType string `json:"block_type"` // "micro" | "macro"
}

// TransactionPayload carries one serialized transaction for mempool
// insertion.
type TransactionPayload struct {
	Data []byte `json:"data"`
}

// PeerDiscoveryPayload requests the recipient's known peer list.
type PeerDiscoveryPayload struct {
	RequestingNode string `json:"requesting_node"`
}

// HealthPingPayload is a liveness probe between peers.
type HealthPingPayload struct {
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
}

// StateSnapshotPayload announces an archived state snapshot's location.
type StateSnapshotPayload struct {
	Height   uint64 `json:"height"`
	IPFSCID  string `json:"ipfs_cid"`
	SenderID string `json:"sender_id"`
}

// ConsensusCommitPayload carries phase-1 of a macroblock consensus round.
type ConsensusCommitPayload struct {
	RoundID    uint64 `json:"round_id"`
	NodeID     string `json:"node_id"`
	CommitHash []byte `json:"commit_hash"`
	Signature  []byte `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
}

// ConsensusRevealPayload carries phase-2 of a macroblock consensus round.
type ConsensusRevealPayload struct {
	RoundID    uint64 `json:"round_id"`
	NodeID     string `json:"node_id"`
	RevealData []byte `json:"reveal_data"`
	Nonce      []byte `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
}

// EmergencyProducerChangePayload announces an emergency producer
// substitution (spec §4.8).
type EmergencyProducerChangePayload struct {
	FailedProducer string `json:"failed_producer"`
	NewProducer    string `json:"new_producer"`
	BlockHeight    uint64 `json:"block_height"`
	ChangeType     string `json:"change_type"`
	Timestamp      int64  `json:"timestamp"`
}

// ReputationUpdate is one (node_id, score) pair within a ReputationSync.
type ReputationUpdate struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

// ReputationSyncPayload gossips reputation-ledger deltas between peers
// (spec §4.3).
type ReputationSyncPayload struct {
	NodeID             string             `json:"node_id"`
	ReputationUpdates  []ReputationUpdate `json:"reputation_updates"`
	Timestamp          int64              `json:"timestamp"`
	Signature          []byte             `json:"signature"`
}

// RequestBlocksPayload asks a peer for a height range of microblocks.
type RequestBlocksPayload struct {
	FromHeight  uint64 `json:"from_height"`
	ToHeight    uint64 `json:"to_height"`
	RequesterID string `json:"requester_id"`
}

// BlockEntry is one (height, data) pair within a BlocksBatch.
type BlockEntry struct {
	Height uint64 `json:"height"`
	Data   []byte `json:"data"`
}

// BlocksBatchPayload answers a RequestBlocks with a contiguous run of
// serialized microblocks.
type BlocksBatchPayload struct {
	Blocks     []BlockEntry `json:"blocks"`
	FromHeight uint64       `json:"from_height"`
	ToHeight   uint64       `json:"to_height"`
	SenderID   string       `json:"sender_id"`
}

// SyncStatusPayload reports a node's sync progress to its peers.
type SyncStatusPayload struct {
	CurrentHeight uint64 `json:"current_height"`
	TargetHeight  uint64 `json:"target_height"`
	Syncing       bool   `json:"syncing"`
	NodeID        string `json:"node_id"`
}

// RequestConsensusStatePayload asks a peer for its view of an in-progress
// consensus round (used to recover after a missed commit/reveal).
type RequestConsensusStatePayload struct {
	Round       uint64 `json:"round"`
	RequesterID string `json:"requester_id"`
}

// ConsensusStatePayload answers a RequestConsensusState with the
// sender's serialized view of the round.
type ConsensusStatePayload struct {
	Round     uint64 `json:"round"`
	StateData []byte `json:"state_data"`
	SenderID  string `json:"sender_id"`
}

// Validate checks that Type matches exactly the payload field that is
// populated, rejecting malformed or ambiguous messages before they reach
// a handler.
func (m NetworkMessage) Validate() error {
	set := 0
	check := func(present bool) { if present { set++ } }
	check(m.Block != nil)
	check(m.Transaction != nil)
	check(m.PeerDiscovery != nil)
	check(m.HealthPing != nil)
	check(m.StateSnapshot != nil)
	check(m.ConsensusCommit != nil)
	check(m.ConsensusReveal != nil)
	check(m.EmergencyProducerChange != nil)
	check(m.ReputationSync != nil)
	check(m.RequestBlocks != nil)
	check(m.BlocksBatch != nil)
	check(m.SyncStatus != nil)
	check(m.RequestConsensusState != nil)
	check(m.ConsensusState != nil)

	if set != 1 {
		return fmt.Errorf("network message must carry exactly one payload, got %d", set)
	}
	return m.matchesType()
}

func (m NetworkMessage) matchesType() error {
	ok := false
	switch m.Type {
	case MsgBlock:
		ok = m.Block != nil
	case MsgTransaction:
		ok = m.Transaction != nil
	case MsgPeerDiscovery:
		ok = m.PeerDiscovery != nil
	case MsgHealthPing:
		ok = m.HealthPing != nil
	case MsgStateSnapshot:
		ok = m.StateSnapshot != nil
	case MsgConsensusCommit:
		ok = m.ConsensusCommit != nil
	case MsgConsensusReveal:
		ok = m.ConsensusReveal != nil
	case MsgEmergencyProducerChange:
		ok = m.EmergencyProducerChange != nil
	case MsgReputationSync:
		ok = m.ReputationSync != nil
	case MsgRequestBlocks:
		ok = m.RequestBlocks != nil
	case MsgBlocksBatch:
		ok = m.BlocksBatch != nil
	case MsgSyncStatus:
		ok = m.SyncStatus != nil
	case MsgRequestConsensusState:
		ok = m.RequestConsensusState != nil
	case MsgConsensusState:
		ok = m.ConsensusState != nil
	default:
		return fmt.Errorf("unknown network message type %q", m.Type)
	}
	if !ok {
		return fmt.Errorf("network message type %q does not match its populated payload", m.Type)
	}
	return nil
}

// MarshalRoundTrip is a convenience used by tests and diagnostics to
// confirm a NetworkMessage survives a JSON encode/decode cycle unchanged.
func MarshalRoundTrip(m NetworkMessage) (NetworkMessage, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return NetworkMessage{}, err
	}
	var out NetworkMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return NetworkMessage{}, err
	}
	return out, nil
}
