// Package crypto implements the post-quantum-compatible signing envelope
// (spec §4.1 / C1): Dilithium-compatible signatures with a deterministic
// Blake3/SHA3 construction, activation-code decryption, and the signature
// and activation caches that make verification O(1) on repeat traffic.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/qnet-project/qnet-core/pkg/types"
)

// Hash computes the SHA3-256 digest used for all chain hashing: block
// hashing, merkle roots, commit hashes, and validator-sampling seeds.
func Hash(data []byte) types.Hash {
	var out types.Hash
	d := sha3.Sum256(data)
	copy(out[:], d[:])
	return out
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HashConcat hashes the concatenation of two hashes. Used for building
// the macroblock state-root combiner.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// HashConcatBytes hashes the concatenation of arbitrary byte slices, in
// order, without building an intermediate buffer.
func HashConcatBytes(parts ...[]byte) types.Hash {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// MerkleRoot computes SHA3-256 over the concatenation of transaction
// hashes, or the zero hash for an empty set (spec §4.6 step 3b).
func MerkleRoot(txHashes []types.Hash) types.Hash {
	if len(txHashes) == 0 {
		return types.Hash{}
	}
	h := sha3.New256()
	for _, t := range txHashes {
		h.Write(t[:])
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
