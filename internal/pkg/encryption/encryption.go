// Package encryption provides AES-256-GCM sealing for cached conversation
// payloads. Cached context snippets contain user chat content, so entries in
// the shared cache are stored sealed when a key is configured.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealer seals and opens cache payloads.
type Sealer interface {
	// Seal encrypts the payload for storage.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts a stored payload. An undecryptable payload is an error;
	// callers treat it as a cache miss.
	Open(sealed []byte) ([]byte, error)
}

// AESSealer implements Sealer using AES-256-GCM with a random nonce
// prepended to each sealed payload.
type AESSealer struct {
	gcm cipher.AEAD
}

// NewAESSealer creates an AES-256-GCM sealer. The key must be 32 bytes,
// given either raw or base64-encoded.
func NewAESSealer(key string) (*AESSealer, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		keyBytes = []byte(key)
	}

	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESSealer{gcm: gcm}, nil
}

// Seal encrypts the payload for storage.
func (s *AESSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a stored payload.
func (s *AESSealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed payload too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateKey generates a random 32-byte key, base64-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// PassthroughSealer stores payloads unsealed. Used when no cache encryption
// key is configured.
type PassthroughSealer struct{}

// NewPassthroughSealer creates a sealer that stores payloads as-is.
func NewPassthroughSealer() *PassthroughSealer {
	return &PassthroughSealer{}
}

// Seal returns the payload unchanged.
func (s *PassthroughSealer) Seal(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

// Open returns the payload unchanged.
func (s *PassthroughSealer) Open(sealed []byte) ([]byte, error) {
	return sealed, nil
}
