package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertextTooShort is returned when a stored value cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// FieldEncryptor seals individual column values with AES-256-GCM.
type FieldEncryptor struct {
	aead cipher.AEAD
}

// NewFieldEncryptor builds an encryptor from a base64 key that decodes to 32 bytes.
func NewFieldEncryptor(base64Key string) (*FieldEncryptor, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is required")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM mode: %w", err)
	}

	return &FieldEncryptor{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext). Empty input stays empty.
func (e *FieldEncryptor) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(e.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Open reverses Seal.
func (e *FieldEncryptor) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	n := e.aead.NonceSize()
	if len(raw) < n {
		return "", ErrCiphertextTooShort
	}

	plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
