// Package secretbox sella secretos en reposo (secretos TOTP) con AES-256-GCM.
//
// Formato: base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSizeGCM      = 12  // 96 bits
	requiredKeyLength = 32  // AES-256
	sep               = "|" // nonce|ciphertext
)

var (
	ErrInvalidKey    = errors.New("secretbox: invalid key")
	ErrInvalidFormat = errors.New("secretbox: invalid format, expected base64(nonce)|base64(ciphertext)")
)

// Box cifra y descifra con una clave maestra fija.
type Box struct {
	aead cipher.AEAD
}

// New crea un Box a partir de una clave base64 (std o raw) o hex de 32 bytes.
// Genere una con: openssl rand -base64 32
func New(key string) (*Box, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseKey decodifica la clave maestra.
func ParseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 2*requiredKeyLength {
		if h, err := hex.DecodeString(key); err == nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: se requieren %d bytes (base64 o hex)", ErrInvalidKey, requiredKeyLength)
}

// Seal cifra plainText.
func (b *Box) Seal(plainText string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra y autentica cipherText.
func (b *Box) Open(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", ErrInvalidFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}
