package consensus

import (
	"crypto/rand"
	"strconv"

	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// nonceDomain domain-separates nonce derivation from every other SHA3-256
// construction in the system (producer selection, validator sampling,
// emergency replacement), so the same hash function can never be
// reinterpreted across concerns (spec §4.7 Phase 1, §4.8 step 3).
const nonceDomain = "nonce_"

// revealDataSize is the length of the random payload a node commits to
// and later reveals as its contribution to a round's state root.
const revealDataSize = 32

// OwnCommit is the (nonce, reveal_data) pair a node must retain locally
// from phase 1 until phase 2 so it can build its own reveal later in the
// same round (spec §4.7 Phase 1: "Store (nonce, reveal_data) keyed by own
// id").
type OwnCommit struct {
	Nonce      [32]byte
	RevealData []byte
	CommitHash types.Hash
}

// NewOwnCommit generates this node's own phase-1 commitment for roundID:
// random reveal data, a nonce domain-separated by round and node id so it
// can never collide with another round's or node's nonce, and the commit
// hash phase 2 must reproduce as H(reveal_data || nonce) (spec §4.7
// Phase 1).
func NewOwnCommit(roundID uint64, nodeID string) (OwnCommit, error) {
	revealData := make([]byte, revealDataSize)
	if _, err := rand.Read(revealData); err != nil {
		return OwnCommit{}, err
	}

	nonceSeed := crypto.HashConcatBytes(
		[]byte(nonceDomain),
		[]byte(strconv.FormatUint(roundID, 10)),
		[]byte(nodeID),
		revealData,
	)
	var nonce [32]byte
	copy(nonce[:], nonceSeed[:])

	commitHash := crypto.HashConcatBytes(revealData, nonce[:])
	return OwnCommit{Nonce: nonce, RevealData: revealData, CommitHash: commitHash}, nil
}
