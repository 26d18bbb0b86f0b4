// Package keychain is the encrypted credential cache: execution-scoped
// secrets and a global derived-token cache, both backed by Postgres with
// an AEAD seal over the stored payload (spec §4.6).
package keychain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadKey is returned when the configured encryption key is not a valid
// chacha20poly1305 key (32 raw bytes, hex-encoded).
var ErrBadKey = errors.New("keychain: encryption key must be 32 bytes hex-encoded")

// Cipher seals and opens keychain payloads with a single AEAD key. The key
// itself models the KMS-managed envelope key spec §4.6 describes; rotating
// it is an out-of-band operation, not something this package does.
type Cipher struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// NewCipher builds a Cipher from a 32-byte hex-encoded key.
func NewCipher(keyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrBadKey
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("keychain: init aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext, prefixing the output with a fresh random nonce.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("keychain: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a Seal-produced blob, splitting off its leading nonce.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("keychain: sealed payload too short")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("keychain: open sealed payload: %w", err)
	}
	return plaintext, nil
}
