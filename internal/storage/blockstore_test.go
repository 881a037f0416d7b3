package storage

import (
	"testing"

	"github.com/qnet-project/qnet-core/pkg/types"
)

func TestBlockStore_MicroblockRoundTrip(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	bs := NewBlockStore(e, nil)
	mb := &types.Microblock{Height: 42, Producer: "node_x"}
	if err := bs.PutMicroblock(mb); err != nil {
		t.Fatalf("PutMicroblock: %v", err)
	}

	got, ok, err := bs.GetMicroblock(42)
	if err != nil || !ok {
		t.Fatalf("GetMicroblock: ok=%v err=%v", ok, err)
	}
	if got.Producer != "node_x" {
		t.Errorf("Producer = %q, want node_x", got.Producer)
	}
}

func TestBlockStore_EncryptedRoundTrip(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	key := make([]byte, 32)
	cipher, err := NewAtRestCipher(key)
	if err != nil {
		t.Fatalf("NewAtRestCipher: %v", err)
	}
	bs := NewBlockStore(e, cipher)

	mb := &types.Macroblock{Height: 90}
	if err := bs.PutMacroblock(mb); err != nil {
		t.Fatalf("PutMacroblock: %v", err)
	}
	got, ok, err := bs.GetMacroblock(90)
	if err != nil || !ok {
		t.Fatalf("GetMacroblock: ok=%v err=%v", ok, err)
	}
	if got.Height != 90 {
		t.Errorf("Height = %d, want 90", got.Height)
	}

	// The raw stored bytes must not contain the plaintext field name.
	raw, ok := e.Get(macroblockKey(90))
	if !ok {
		t.Fatal("expected raw bytes present")
	}
	for i := 0; i+6 <= len(raw); i++ {
		if string(raw[i:i+6]) == "height" {
			t.Error("expected ciphertext, found plaintext field name")
			break
		}
	}
}

func TestAtRestCipher_TamperDetected(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewAtRestCipher(key)
	if err != nil {
		t.Fatalf("NewAtRestCipher: %v", err)
	}

	ct, err := c.Seal([]byte("hello"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	ct[len(ct)-1] ^= 0xFF

	if _, err := c.Open(ct); err == nil {
		t.Error("expected tamper detection to fail Open")
	}
}
