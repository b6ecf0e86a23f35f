package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// TokenCipher seals tokens with AES-256-GCM before they are written to the
// database. The nonce is prepended to the ciphertext.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("token cipher: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("token cipher: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("token cipher: create GCM: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Seal encrypts token and returns it base64 encoded. Empty tokens stay
// empty so "signed out" remains visible in the table. A nil cipher passes
// tokens through unchanged.
func (tc *TokenCipher) Seal(token string) (string, error) {
	if tc == nil || token == "" {
		return token, nil
	}
	nonce := make([]byte, tc.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("token seal: generate nonce: %w", err)
	}
	sealed := tc.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (tc *TokenCipher) Open(sealed string) (string, error) {
	if tc == nil || sealed == "" {
		return sealed, nil
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("token open: base64 decode: %w", err)
	}
	nonceSize := tc.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("token open: ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := tc.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("token open: %w", err)
	}
	return string(plain), nil
}
