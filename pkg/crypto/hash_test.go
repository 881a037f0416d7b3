package crypto

import (
	"testing"

	"github.com/qnet-project/qnet-core/pkg/types"
)

func TestHash_Deterministic(t *testing.T) {
	data := []byte("deterministic test input")
	h1 := Hash(data)
	h2 := Hash(data)
	if h1 != h2 {
		t.Errorf("Hash is not deterministic: %x != %x", h1, h2)
	}
}

func TestHash_DifferentInputs(t *testing.T) {
	h1 := Hash([]byte("input A"))
	h2 := Hash([]byte("input B"))
	if h1 == h2 {
		t.Error("different inputs produced the same hash")
	}
}

func TestDoubleHash_NotSameAsHash(t *testing.T) {
	data := []byte("test data")
	single := Hash(data)
	double := DoubleHash(data)
	if single == double {
		t.Error("DoubleHash should not equal single Hash")
	}
}

func TestHashConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))
	result := HashConcat(a, b)

	if result == (types.Hash{}) {
		t.Error("HashConcat returned zero hash")
	}

	reversed := HashConcat(b, a)
	if result == reversed {
		t.Error("HashConcat(a,b) should differ from HashConcat(b,a)")
	}

	again := HashConcat(a, b)
	if result != again {
		t.Error("HashConcat is not deterministic")
	}
}

func TestHashConcat_EqualsManualConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))

	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	want := Hash(buf[:])

	got := HashConcat(a, b)
	if got != want {
		t.Errorf("HashConcat = %x, want %x", got, want)
	}
}

func TestMerkleRoot_EmptyIsZero(t *testing.T) {
	if got := MerkleRoot(nil); got != (types.Hash{}) {
		t.Errorf("MerkleRoot(nil) = %x, want zero hash", got)
	}
}

func TestMerkleRoot_Deterministic(t *testing.T) {
	hashes := []types.Hash{Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))}
	r1 := MerkleRoot(hashes)
	r2 := MerkleRoot(hashes)
	if r1 != r2 {
		t.Errorf("MerkleRoot not deterministic: %x != %x", r1, r2)
	}
	if r1 == (types.Hash{}) {
		t.Error("MerkleRoot of non-empty set should not be zero")
	}
}
