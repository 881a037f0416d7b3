package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/qnet-project/qnet-core/internal/errs"
)

// AtRestCipher wraps AES-256-GCM for optional at-rest encryption of stored
// microblocks and macroblocks (spec §4.4). Disabled by default; a node
// opts in by constructing one with a 32-byte key derived from its storage
// passphrase.
type AtRestCipher struct {
	aead cipher.AEAD
}

// NewAtRestCipher builds a cipher from a 32-byte AES-256 key.
func NewAtRestCipher(key []byte) (*AtRestCipher, error) {
	if len(key) != 32 {
		return nil, errs.New(errs.InvalidFormat, "at-rest encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "init AES cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "init AES-GCM", err)
	}
	return &AtRestCipher{aead: aead}, nil
}

// Seal encrypts plaintext, prefixing the output with a random nonce.
func (c *AtRestCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errs.Wrap(errs.Io, "generate nonce", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data previously produced by Seal.
func (c *AtRestCipher) Open(data []byte) ([]byte, error) {
	if len(data) < c.aead.NonceSize() {
		return nil, errs.New(errs.DecryptionFailed, "ciphertext too short")
	}
	nonce, ct := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errs.Wrap(errs.DecryptionFailed, "AES-GCM open failed", err)
	}
	return plaintext, nil
}
