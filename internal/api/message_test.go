package api

import "testing"

func buildAllVariants() []NetworkMessage {
	return []NetworkMessage{
		{Type: MsgBlock, Block: &BlockPayload{Height: 5, Data: []byte{1, 2, 3}, BlockType: "micro"}},
		{Type: MsgTransaction, Transaction: &TransactionPayload{Data: []byte("tx")}},
		{Type: MsgPeerDiscovery, PeerDiscovery: &PeerDiscoveryPayload{RequestingNode: "n1"}},
		{Type: MsgHealthPing, HealthPing: &HealthPingPayload{From: "n1", Timestamp: 100}},
		{Type: MsgStateSnapshot, StateSnapshot: &StateSnapshotPayload{Height: 90, IPFSCID: "cid", SenderID: "n1"}},
		{Type: MsgConsensusCommit, ConsensusCommit: &ConsensusCommitPayload{RoundID: 90, NodeID: "n1", CommitHash: []byte{1}, Signature: []byte{2}, Timestamp: 1}},
		{Type: MsgConsensusReveal, ConsensusReveal: &ConsensusRevealPayload{RoundID: 90, NodeID: "n1", RevealData: []byte{1}, Nonce: []byte{2}, Timestamp: 1}},
		{Type: MsgEmergencyProducerChange, EmergencyProducerChange: &EmergencyProducerChangePayload{FailedProducer: "n1", NewProducer: "n2", BlockHeight: 10, ChangeType: "missed_slot", Timestamp: 1}},
		{Type: MsgReputationSync, ReputationSync: &ReputationSyncPayload{NodeID: "n1", ReputationUpdates: []ReputationUpdate{{NodeID: "n2", Score: 80}}, Timestamp: 1, Signature: []byte{3}}},
		{Type: MsgRequestBlocks, RequestBlocks: &RequestBlocksPayload{FromHeight: 1, ToHeight: 10, RequesterID: "n1"}},
		{Type: MsgBlocksBatch, BlocksBatch: &BlocksBatchPayload{Blocks: []BlockEntry{{Height: 1, Data: []byte{1}}}, FromHeight: 1, ToHeight: 1, SenderID: "n1"}},
		{Type: MsgSyncStatus, SyncStatus: &SyncStatusPayload{CurrentHeight: 5, TargetHeight: 10, Syncing: true, NodeID: "n1"}},
		{Type: MsgRequestConsensusState, RequestConsensusState: &RequestConsensusStatePayload{Round: 90, RequesterID: "n1"}},
		{Type: MsgConsensusState, ConsensusState: &ConsensusStatePayload{Round: 90, StateData: []byte{1, 2}, SenderID: "n1"}},
	}
}

func TestNetworkMessage_AllVariantsRoundTrip(t *testing.T) {
	variants := buildAllVariants()
	if len(variants) != 14 {
		t.Fatalf("expected 14 variants, got %d", len(variants))
	}
	for _, m := range variants {
		if err := m.Validate(); err != nil {
			t.Fatalf("%s: Validate: %v", m.Type, err)
		}
		out, err := MarshalRoundTrip(m)
		if err != nil {
			t.Fatalf("%s: MarshalRoundTrip: %v", m.Type, err)
		}
		if out.Type != m.Type {
			t.Errorf("%s: round-tripped type = %s", m.Type, out.Type)
		}
		if err := out.Validate(); err != nil {
			t.Errorf("%s: round-tripped message failed validation: %v", m.Type, err)
		}
	}
}

func TestNetworkMessage_RejectsMismatchedType(t *testing.T) {
	m := NetworkMessage{Type: MsgBlock, Transaction: &TransactionPayload{Data: []byte("x")}}
	if err := m.Validate(); err == nil {
		t.Error("expected validation error for mismatched type/payload")
	}
}

func TestNetworkMessage_RejectsMultiplePayloads(t *testing.T) {
	m := NetworkMessage{
		Type:        MsgBlock,
		Block:       &BlockPayload{Height: 1},
		Transaction: &TransactionPayload{Data: []byte("x")},
	}
	if err := m.Validate(); err == nil {
		t.Error("expected validation error when more than one payload is set")
	}
}

func TestNetworkMessage_RejectsUnknownType(t *testing.T) {
	m := NetworkMessage{Type: "Bogus", Block: &BlockPayload{Height: 1}}
	if err := m.Validate(); err == nil {
		t.Error("expected validation error for unknown type")
	}
}
