package consensus

import (
	"testing"

	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

func TestByzantineThreshold(t *testing.T) {
	cases := map[int]int{
		1: 1,
		3: 2,
		4: 3,
		9: 6,
	}
	for n, want := range cases {
		if got := ByzantineThreshold(n); got != want {
			t.Errorf("ByzantineThreshold(%d) = %d, want %d", n, got, want)
		}
	}
}

func commitFor(t *testing.T, env *crypto.Envelope, nodeID string, roundID uint64, data, nonce []byte) types.Commit {
	t.Helper()
	var n [32]byte
	copy(n[:], nonce)
	commitHash := crypto.HashConcatBytes(data, n[:])
	sig, err := env.Sign(nodeID, commitHash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return types.Commit{RoundID: roundID, NodeID: nodeID, CommitHash: commitHash, Signature: sig}
}

func TestRound_FullCommitRevealFinalize(t *testing.T) {
	nodes := []string{"n1", "n2", "n3"}
	keys := make(map[string]*crypto.PrivateKey)
	envs := make(map[string]*crypto.Envelope)
	for _, id := range nodes {
		k, _ := crypto.GenerateKey()
		keys[id] = k
		e, err := crypto.NewEnvelope(id, k, 16)
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}
		envs[id] = e
	}
	// Cross-register so any node's envelope can verify any other's signature.
	for _, a := range nodes {
		for _, b := range nodes {
			envs[a].RegisterSigner(b, keys[b].PublicKey())
		}
	}

	round := NewRound(1, "n1", nodes)

	nonces := map[string][]byte{"n1": []byte("nonce1-nonce1-nonce1-nonce1-0000"), "n2": []byte("nonce2-nonce2-nonce2-nonce2-0000"), "n3": []byte("nonce3-nonce3-nonce3-nonce3-0000")}
	for _, id := range nodes {
		c := commitFor(t, envs["n1"], id, round.RoundID, []byte("reveal-"+id), nonces[id])
		if err := round.AddCommit(envs["n1"], c); err != nil {
			t.Fatalf("AddCommit(%s): %v", id, err)
		}
	}

	if err := round.AdvanceToReveal(); err != nil {
		t.Fatalf("AdvanceToReveal: %v", err)
	}

	for _, id := range nodes {
		var n [32]byte
		copy(n[:], nonces[id])
		r := types.Reveal{RoundID: round.RoundID, NodeID: id, RevealData: []byte("reveal-" + id), Nonce: n}
		if err := round.AddReveal(r); err != nil {
			t.Fatalf("AddReveal(%s): %v", id, err)
		}
	}

	var microHashes [types.MacroblockSpan]types.Hash
	mb, err := round.Finalize(microHashes, types.Hash{}, "n2")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if mb.Consensus.NextLeader != "n2" {
		t.Errorf("NextLeader = %q", mb.Consensus.NextLeader)
	}
	if len(mb.Consensus.Reveals) != 3 {
		t.Errorf("expected 3 reveals in finalized macroblock, got %d", len(mb.Consensus.Reveals))
	}
}

func TestRound_RevealMismatchRejected(t *testing.T) {
	key, _ := crypto.GenerateKey()
	env, err := crypto.NewEnvelope("n1", key, 16)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	round := NewRound(1, "n1", []string{"n1"})
	c := commitFor(t, env, "n1", round.RoundID, []byte("real-data"), []byte("nonce-nonce-nonce-nonce-nonce-00"))
	if err := round.AddCommit(env, c); err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	round.Phase = PhaseReveal

	var n [32]byte
	copy(n[:], []byte("nonce-nonce-nonce-nonce-nonce-00"))
	bad := types.Reveal{RoundID: round.RoundID, NodeID: "n1", RevealData: []byte("tampered-data"), Nonce: n}
	if err := round.AddReveal(bad); err == nil {
		t.Error("expected mismatched reveal to be rejected")
	}
}

func TestRound_InsufficientCommitsFailsAdvance(t *testing.T) {
	round := NewRound(1, "n1", []string{"n1", "n2", "n3"})
	if err := round.AdvanceToReveal(); err == nil {
		t.Error("expected AdvanceToReveal to fail with zero commits")
	}
	if round.Phase != PhaseFailed {
		t.Errorf("Phase = %v, want PhaseFailed", round.Phase)
	}
}
