package mempool

import (
	"testing"

	"github.com/qnet-project/qnet-core/pkg/crypto"
)

func TestMempool_InsertAndDrain(t *testing.T) {
	m := New(10)
	tx := []byte("tx1")
	if !m.Insert(tx, crypto.Hash(tx)) {
		t.Fatal("expected insert to succeed")
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}

	drained := m.Drain(10)
	if len(drained) != 1 || string(drained[0]) != "tx1" {
		t.Errorf("Drain = %v", drained)
	}
	if m.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", m.Len())
	}
}

func TestMempool_RejectsDuplicate(t *testing.T) {
	m := New(10)
	tx := []byte("tx1")
	m.Insert(tx, crypto.Hash(tx))
	if m.Insert(tx, crypto.Hash(tx)) {
		t.Error("expected duplicate insert to be rejected")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMempool_RespectsCapacity(t *testing.T) {
	m := New(2)
	m.Insert([]byte("a"), crypto.Hash([]byte("a")))
	m.Insert([]byte("b"), crypto.Hash([]byte("b")))
	if m.Insert([]byte("c"), crypto.Hash([]byte("c"))) {
		t.Error("expected insert beyond capacity to be rejected")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestMempool_DrainPartial(t *testing.T) {
	m := New(10)
	for _, s := range []string{"a", "b", "c"} {
		m.Insert([]byte(s), crypto.Hash([]byte(s)))
	}
	drained := m.Drain(2)
	if len(drained) != 2 {
		t.Fatalf("Drain(2) returned %d items", len(drained))
	}
	if m.Len() != 1 {
		t.Errorf("Len after partial drain = %d, want 1", m.Len())
	}
}
