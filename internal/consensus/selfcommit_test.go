package consensus

import (
	"testing"

	"github.com/qnet-project/qnet-core/pkg/crypto"
)

func TestNewOwnCommit_RevealMatchesCommitHash(t *testing.T) {
	oc, err := NewOwnCommit(90, "node_a")
	if err != nil {
		t.Fatalf("NewOwnCommit: %v", err)
	}

	want := crypto.HashConcatBytes(oc.RevealData, oc.Nonce[:])
	if want != oc.CommitHash {
		t.Error("reveal_data || nonce should hash to the stored commit hash")
	}
}

func TestNewOwnCommit_DistinctAcrossRoundsAndNodes(t *testing.T) {
	a, err := NewOwnCommit(90, "node_a")
	if err != nil {
		t.Fatalf("NewOwnCommit: %v", err)
	}
	b, err := NewOwnCommit(180, "node_a")
	if err != nil {
		t.Fatalf("NewOwnCommit: %v", err)
	}
	c, err := NewOwnCommit(90, "node_b")
	if err != nil {
		t.Fatalf("NewOwnCommit: %v", err)
	}

	if a.CommitHash == b.CommitHash {
		t.Error("commits for different rounds should not collide")
	}
	if a.CommitHash == c.CommitHash {
		t.Error("commits for different node ids should not collide")
	}
}
