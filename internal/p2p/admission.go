package p2p

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/qnet-project/qnet-core/internal/cache"
	"github.com/qnet-project/qnet-core/internal/errs"
	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

const (
	challengeLength = 32
	challengeTTL    = 30 * time.Second
)

// admission holds the epoch-versioned cache of outstanding challenges
// issued to candidate peers, one per node_id, so a stale or replayed
// response can never be accepted (spec §4.3 admission pipeline).
type admission struct {
	envelope    *crypto.Envelope
	reputation  *reputation.Ledger
	challenges  *cache.EpochCache[string] // node_id -> hex challenge
}

func newAdmission(envelope *crypto.Envelope, rep *reputation.Ledger) *admission {
	return &admission{
		envelope:   envelope,
		reputation: rep,
		challenges: cache.NewEpochCache[string](challengeTTL),
	}
}

// Challenge issues a fresh random challenge for nodeID, to be signed by
// the candidate's private key and returned in a handshake response.
func (a *admission) Challenge(nodeID string) (string, error) {
	buf := make([]byte, challengeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.Wrap(errs.Io, "generate admission challenge", err)
	}
	challenge := hex.EncodeToString(buf)
	a.challenges.Set(nodeID, challenge)
	return challenge, nil
}

// Admit validates a candidate's signed challenge response and reputation
// standing, registering its public key with the envelope on success. A
// node below the reputation ban threshold, or a Genesis node id asserted
// by a non-bootstrap peer (spec §3 identity invariant), is rejected.
func (a *admission) Admit(info PeerInfo, sig crypto.Signature) error {
	if types.IsGenesisNodeID(info.NodeID) {
		return errs.New(errs.Forbidden, "Genesis node ids are admitted only through the bootstrap path")
	}
	if a.reputation.IsBanned(info.NodeID) {
		return errs.New(errs.Forbidden, "peer is banned")
	}

	challenge, _, ok := a.challenges.Get(info.NodeID)
	if !ok {
		return errs.New(errs.Forbidden, "no outstanding challenge for peer")
	}

	if !crypto.VerifyEnvelope(info.PublicKey, []byte(challenge), sig) {
		return errs.New(errs.InvalidSignature, "admission challenge response invalid")
	}

	a.envelope.RegisterSigner(info.NodeID, info.PublicKey)
	a.challenges.Delete(info.NodeID)
	return nil
}

// AdmitGenesis bypasses the normal challenge flow for the five Genesis
// bootstrap node ids, whose standing is established by the activation
// whitelist rather than a runtime handshake (spec §4.1/§4.3).
func (a *admission) AdmitGenesis(info PeerInfo) error {
	if !types.IsGenesisNodeID(info.NodeID) {
		return errs.New(errs.Forbidden, "not a Genesis node id")
	}
	a.envelope.RegisterSigner(info.NodeID, info.PublicKey)
	a.reputation.Set(info.NodeID, reputation.GenesisFloor)
	return nil
}
