// Package secret encrypts transport credentials before they are written to the
// database.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const prefix = "sb1:"

// ErrDecrypt is returned when a sealed value cannot be opened with the
// configured key.
var ErrDecrypt = errors.New("secret: decrypt failed")

// Box seals and opens credential strings with a 32-byte key.
// A nil *Box passes values through unchanged.
type Box struct {
	key [32]byte
}

// NewBox builds a Box from a hex or base64 encoded 32-byte key. An empty key
// returns a nil Box, which stores credentials in plain text.
func NewBox(encodedKey string) (*Box, error) {
	if encodedKey == "" {
		return nil, nil
	}

	raw, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret: key must be 32 bytes, got %d", len(raw))
	}

	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

func decodeKey(s string) ([]byte, error) {
	if raw, err := hex.DecodeString(s); err == nil {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return nil, errors.New("secret: key must be hex or base64 encoded")
}

// Seal encrypts plaintext. Empty strings are stored as-is so that an unset
// password stays recognisable.
func (b *Box) Seal(plaintext string) (string, error) {
	if b == nil || plaintext == "" {
		return plaintext, nil
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secret: read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix are
// returned unchanged, which covers rows written before a key was configured.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if b == nil {
		return "", fmt.Errorf("%w: no credentials key configured", ErrDecrypt)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(raw) < 24 {
		return "", ErrDecrypt
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])
	out, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(out), nil
}
