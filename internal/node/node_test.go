package node

import (
	"context"
	"testing"

	"github.com/qnet-project/qnet-core/config"
	"github.com/qnet-project/qnet-core/internal/consensus"
	"github.com/qnet-project/qnet-core/pkg/crypto"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.RPC.Addr = "127.0.0.1:0"

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	n, err := New(cfg, nil, "test-node", key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNode_HeightStartsAtZero(t *testing.T) {
	n := newTestNode(t)
	if got := n.Height(context.Background()); got != 0 {
		t.Errorf("Height() = %d, want 0", got)
	}
}

func TestNode_RespondToChallengeSignsWithOwnKey(t *testing.T) {
	n := newTestNode(t)
	sigHex, pubHex, err := n.RespondToChallenge(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	if sigHex == "" || pubHex == "" {
		t.Error("expected non-empty signature and public key")
	}
}

func TestNode_RespondToChallengeRejectsInvalidHex(t *testing.T) {
	n := newTestNode(t)
	if _, _, err := n.RespondToChallenge(context.Background(), "not-hex!!"); err == nil {
		t.Error("expected error for non-hex challenge")
	}
}

func TestNode_MicroblockMissingBeforeProduction(t *testing.T) {
	n := newTestNode(t)
	if _, ok := n.Microblock(context.Background(), 0); ok {
		t.Error("expected no microblock at height 0 before any production")
	}
}

func TestNode_Healthy(t *testing.T) {
	n := newTestNode(t)
	if !n.Healthy(context.Background()) {
		t.Error("expected node to report healthy")
	}
}

func TestNode_ReputationPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.RPC.Addr = "127.0.0.1:0"

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	n1, err := New(cfg, nil, "test-node", key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n1.ledger.Set("peer-a", 77)
	if err := n1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n2, err := New(cfg, nil, "test-node", key)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer n2.Close()

	if got := n2.ledger.Get("peer-a"); got != 77 {
		t.Errorf("reputation after restart = %v, want 77", got)
	}
}

func TestNode_SubmitOwnCommitAddsLocallyAndStoresReveal(t *testing.T) {
	n := newTestNode(t)
	round := consensus.NewRound(0, n.selfID, []string{n.selfID, "peer-b"})

	n.submitOwnCommit(round)

	n.mu.Lock()
	_, stored := n.ownCommits[round.RoundID]
	n.mu.Unlock()
	if !stored {
		t.Fatal("expected own (nonce, reveal_data) to be stored keyed by round id")
	}
}

func TestNode_SubmitOwnRevealConsumesStoredCommit(t *testing.T) {
	n := newTestNode(t)
	round := consensus.NewRound(0, n.selfID, []string{n.selfID, "peer-b"})
	n.submitOwnCommit(round)

	n.submitOwnReveal(round)

	n.mu.Lock()
	_, stillStored := n.ownCommits[round.RoundID]
	n.mu.Unlock()
	if stillStored {
		t.Error("own commit entry should be cleared once its reveal is submitted")
	}
}
