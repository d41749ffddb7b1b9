// Package tokens genera credenciales opacas y sus hashes de almacenamiento.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Pair es un token en claro (para el cliente, una sola vez) y su hash (para la DB).
type Pair struct {
	Token string
	Hash  string
}

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("tokens: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewPair genera un token de nBytes aleatorios y su SHA256Hex.
func NewPair(nBytes int) (Pair, error) {
	tok, err := GenerateOpaqueToken(nBytes)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Token: tok, Hash: SHA256Hex(tok)}, nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SHA256Hex devuelve sha256(input) en hexadecimal. Es el formato de token_hash en DB.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Equal compara dos hashes en tiempo constante.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
