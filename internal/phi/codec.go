// Package phi encrypts protected health information at rest. Medical
// histories, chat bodies, transcripts, and clinical notes pass through this
// codec before touching storage.
package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const KeySize = 32 // AES-256

var (
	// ErrDecryptFailure is returned for any undecryptable ciphertext:
	// corruption, truncation, or a key mismatch. Callers must treat it as
	// an integrity failure, never as empty content.
	ErrDecryptFailure = errors.New("phi: ciphertext cannot be decrypted")

	ErrInvalidKey = errors.New("phi: key must be 32 bytes")
)

// Codec performs authenticated field-level encryption. The key is fixed for
// the process lifetime.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a codec from a raw 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi: create gcm: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// NewCodecFromHex creates a codec from a hex-encoded 32-byte key, the form
// the key takes in configuration.
func NewCodecFromHex(keyHex string) (*Codec, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("phi: decode key: %w", err)
	}
	return NewCodec(key)
}

// Encrypt seals plaintext under a fresh random nonce. The output is
// hex(nonce) + ":" + hex(ciphertext). Empty input passes through unchanged
// so optional fields stay empty rather than becoming encrypted blobs.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("phi: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Empty input passes through.
func (c *Codec) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	parts := strings.SplitN(encoded, ":", 2)
	if len(parts) != 2 {
		return "", ErrDecryptFailure
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrDecryptFailure
	}

	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptFailure
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailure
	}

	return string(plaintext), nil
}
