package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce")

func aead() (interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}, error) {
	config := GetConfig()

	key, err := base64.StdEncoding.DecodeString(config.TerminalCRKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credentials key: %w", err)
	}

	c, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}
	return c, nil
}

// EncryptString seals a terminal credential for storage. The nonce is
// prepended to the ciphertext and the whole blob is base64 encoded.
func EncryptString(plain string) (string, error) {
	c, err := aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a credential sealed by EncryptString.
func DecryptString(enc string) (string, error) {
	c, err := aead()
	if err != nil {
		return "", err
	}

	blob, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("failed to decode credential blob: %w", err)
	}
	if len(blob) < c.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := blob[:c.NonceSize()], blob[c.NonceSize():]
	plain, err := c.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open credential blob: %w", err)
	}
	return string(plain), nil
}
