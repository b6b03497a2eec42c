// Package crypto seals journal text columns with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values written by Encrypt. Values without it are
// treated as plaintext written before encryption was enabled.
const sealedPrefix = "enc:v1:"

// ErrCiphertext is returned for sealed values that cannot be opened
var ErrCiphertext = errors.New("invalid ciphertext")

// FieldEncryptor seals and opens column values
type FieldEncryptor struct {
	aead cipher.AEAD
}

// NewFieldEncryptor builds an encryptor from a base64 encoded 32 byte key
func NewFieldEncryptor(base64Key string) (*FieldEncryptor, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is required")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &FieldEncryptor{aead: aead}, nil
}

// IsSealed reports whether value was produced by Encrypt
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Encrypt seals plaintext. Empty and already sealed values are returned
// unchanged so repeated saves of a loaded row do not double-encrypt.
func (e *FieldEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Unsealed values pass through.
func (e *FieldEncryptor) Decrypt(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}

	n := e.aead.NonceSize()
	if len(sealed) < n {
		return "", fmt.Errorf("%w: too short", ErrCiphertext)
	}

	plaintext, err := e.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(plaintext), nil
}
