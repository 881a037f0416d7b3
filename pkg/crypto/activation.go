package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/qnet-project/qnet-core/internal/errs"
)

// genesisBootstrapCount mirrors types.GenesisBootstrapCount; kept local to
// avoid pkg/crypto depending on pkg/types for a single constant.
const genesisBootstrapCount = 5

// genesisBootstrapWhitelist are the 5 Genesis bootstrap codes that bypass
// decryption entirely (spec §4.1). Index i corresponds to genesis_node_00{i+1}.
var genesisBootstrapWhitelist = [genesisBootstrapCount]string{
	"QNET-BOOT-0001-STRAP",
	"QNET-BOOT-0002-STRAP",
	"QNET-BOOT-0003-STRAP",
	"QNET-BOOT-0004-STRAP",
	"QNET-BOOT-0005-STRAP",
}

const (
	activationExpiry    = 365 * 24 * time.Hour
	activationFutureTol = time.Hour
	keySegmentBytes     = 8
)

// ActivationPayload is the decrypted contents of an activation code
// (spec §4.1). Wallet is the compressed secp256k1 public key that signed
// the payload.
type ActivationPayload struct {
	Wallet    []byte    `json:"wallet"`
	NodeType  uint8     `json:"node_type"` // 0=Light,1=Full,2=Super
	BurnTx    string    `json:"burn_tx"`
	Timestamp int64     `json:"timestamp"`
	Permanent bool      `json:"permanent"`
	Signature Signature `json:"signature"`
}

// genesisPayload is the fixed payload returned for whitelisted Genesis
// bootstrap codes (spec §4.1); it carries no signature because it never
// passes through the embedded-signature check.
func genesisPayload() ActivationPayload {
	return ActivationPayload{
		NodeType:  2, // Super
		BurnTx:    "genesis_bootstrap",
		Timestamp: time.Now().Unix(),
		Permanent: true,
	}
}

// isValidCodeFormat checks the canonical QNET-XXXX-...-XXXX shape: a
// literal QNET prefix and dash-separated groups, at least 17 characters
// overall (spec §4.1). Hand-typed Genesis codes land at exactly 20 chars;
// minted codes carry a longer ciphertext tail.
func isValidCodeFormat(code string) bool {
	if len(code) < 17 {
		return false
	}
	parts := strings.Split(code, "-")
	return len(parts) >= 3 && parts[0] == "QNET"
}

// deriveActivationKey derives a 32-byte ChaCha20-Poly1305 key from the
// code's visible key segment via Blake3 domain-separated hashing
// (spec §4.1). The key segment travels in the clear inside the code; the
// resulting key never needs to be transmitted or stored separately.
func deriveActivationKey(keySegment string) ([]byte, error) {
	h, err := blake3.NewDeriveKey("qnet-activation-code-v1")
	if err != nil {
		return nil, err
	}
	h.Write([]byte(keySegment))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := h.Digest().Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DecryptActivation decrypts and validates a canonical QNET-activation
// code (spec §4.1). Genesis bootstrap codes bypass decryption entirely.
// Results are cached by the full code string with a ~3600s TTL.
func DecryptActivation(cache *activationCache, code string) (ActivationPayload, error) {
	if cache != nil {
		if p, ok := cache.get(code); ok {
			return p, nil
		}
	}

	for _, wl := range genesisBootstrapWhitelist {
		if code == wl {
			return genesisPayload(), nil
		}
	}

	if !isValidCodeFormat(code) {
		return ActivationPayload{}, errs.New(errs.InvalidFormat,
			"expected QNET-<key>-<ciphertext...> with at least 17 characters")
	}

	parts := strings.SplitN(code, "-", 3)
	keySegment := parts[1]
	ciphertextB64 := parts[2]

	key, err := deriveActivationKey(keySegment)
	if err != nil {
		return ActivationPayload{}, errs.Wrap(errs.DecryptionFailed, "key derivation failed", err)
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return ActivationPayload{}, errs.Wrap(errs.InvalidFormat, "ciphertext is not valid base64", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return ActivationPayload{}, errs.Wrap(errs.DecryptionFailed, "aead init failed", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return ActivationPayload{}, errs.New(errs.DecryptionFailed, "ciphertext too short")
	}
	nonce, ct := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return ActivationPayload{}, errs.Wrap(errs.DecryptionFailed, "chacha20poly1305 open failed", err)
	}

	var payload ActivationPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return ActivationPayload{}, errs.Wrap(errs.Serialization, "activation payload decode failed", err)
	}

	if err := validateActivationPayload(payload); err != nil {
		return ActivationPayload{}, err
	}

	if cache != nil {
		cache.set(code, payload)
	}
	return payload, nil
}

// signedMessage is the exact byte string the embedded Dilithium-compatible
// signature covers: burn_tx:node_type:timestamp (spec §4.1).
func signedMessage(p ActivationPayload) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", p.BurnTx, p.NodeType, p.Timestamp))
}

// validateActivationPayload checks freshness and the embedded signature.
func validateActivationPayload(p ActivationPayload) error {
	now := time.Now()
	ts := time.Unix(p.Timestamp, 0)
	if now.Sub(ts) > activationExpiry {
		return errs.New(errs.Expired, "activation code older than 1 year")
	}
	if ts.Sub(now) > activationFutureTol {
		return errs.New(errs.FutureTimestamp, "activation code timestamp more than 1h in the future")
	}
	if !VerifyEnvelope(p.Wallet, signedMessage(p), p.Signature) {
		return errs.New(errs.InvalidSignature, "activation payload signature invalid")
	}
	return nil
}

// EncryptActivation mints a canonical activation code for payload, signed
// with signerKey (whose compressed public key becomes payload.Wallet) and
// encrypted with a freshly generated key segment. This stands in for the
// external burn-and-activate registry, which is out of scope for the node
// itself (§1) but is needed locally to exercise the decrypt round-trip and
// for devnet bootstrap tooling.
func EncryptActivation(signerKey *PrivateKey, payload ActivationPayload) (string, error) {
	payload.Wallet = signerKey.PublicKey()
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().Unix()
	}
	sig, err := SignWithKey(signerKey, signedMessage(payload))
	if err != nil {
		return "", err
	}
	payload.Signature = sig

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(errs.Serialization, "marshal activation payload", err)
	}

	keySeed := make([]byte, keySegmentBytes)
	if _, err := rand.Read(keySeed); err != nil {
		return "", errs.Wrap(errs.DecryptionFailed, "key segment generation failed", err)
	}
	keySegment := hex.EncodeToString(keySeed)

	key, err := deriveActivationKey(keySegment)
	if err != nil {
		return "", errs.Wrap(errs.DecryptionFailed, "key derivation failed", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", errs.Wrap(errs.DecryptionFailed, "aead init failed", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.Wrap(errs.DecryptionFailed, "nonce generation failed", err)
	}
	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)

	return fmt.Sprintf("QNET-%s-%s", keySegment, base64.RawURLEncoding.EncodeToString(ciphertext)), nil
}
