// Package crypto implements the authenticated symmetric encryption used to
// store sensitive AppSetting values (e.g. API keys kept in the metadata
// store instead of the environment).
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrEmptyPassphrase is returned by NewCipher when passphrase is empty.
// metadatastore.Open builds no cipher for an empty passphrase; reading or
// writing an encrypted setting then fails with an error.
var ErrEmptyPassphrase = errors.New("crypto: empty passphrase")

// Cipher encrypts and decrypts AppSetting values with a key derived from a
// user-supplied passphrase.
type Cipher struct {
	key [chacha20poly1305.KeySize]byte
}

// NewCipher derives a 256-bit key from passphrase via SHA-256. A KDF with a
// per-install salt would be preferable, but the settings table is local
// single-process state, not a multi-tenant secret store, so a straight hash
// derivation keeps the contract (stable key from a stable passphrase)
// without a migration-sensitive stored salt.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &Cipher{key: sha256.Sum256([]byte(passphrase))}, nil
}

// Encrypt returns nonce||ciphertext, where ciphertext is sealed with
// ChaCha20-Poly1305 (an AEAD cipher; the seal both encrypts and
// authenticates the plaintext).
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. It returns an error if the ciphertext is
// truncated or fails authentication.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, errors.New("crypto: ciphertext too short")
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return plaintext, nil
}
