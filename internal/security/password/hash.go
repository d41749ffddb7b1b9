// Package password hashea y verifica secretos de usuario (passwords y recovery codes).
//
// Formato de salida: PHC argon2id. Se aceptan hashes bcrypt heredados ($2a$, $2b$, $2y$)
// solo para verificación.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var (
	// Default para passwords de usuario.
	Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

	// Light para material de alta entropía (recovery codes): 10 hashes por batch.
	Light = Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, KeyLen: 32}
)

var ErrEmpty = errors.New("password: empty input")

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify compara plain contra un hash argon2id o bcrypt en tiempo constante.
// Cualquier hash malformado retorna false.
func Verify(plain, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(plain, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	default:
		return false
	}
}

// NeedsRehash indica si el hash no es argon2id con los parámetros dados.
func NeedsRehash(p Params, hash string) bool {
	ap, _, _, ok := parseArgon2id(hash)
	if !ok {
		return true
	}
	return ap.Memory != p.Memory || ap.Time != p.Time || ap.Parallelism != p.Parallelism
}

func verifyArgon2id(plain, hash string) bool {
	p, salt, dk, ok := parseArgon2id(hash)
	if !ok {
		return false
	}
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(dk)))
	return subtle.ConstantTimeCompare(key, dk) == 1
}

// parseArgon2id separa "$argon2id$v=19$m=..,t=..,p=..$salt$dk".
func parseArgon2id(hash string) (p Params, salt, dk []byte, ok bool) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Params{}, nil, nil, false
	}
	var m, t uint32
	var par uint8
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &par); err != nil || n != 3 {
		return Params{}, nil, nil, false
	}
	// argon2.IDKey entra en pánico con t=0 o p=0
	if m == 0 || t == 0 || par == 0 {
		return Params{}, nil, nil, false
	}
	var err error
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return Params{}, nil, nil, false
	}
	if dk, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(dk) == 0 {
		return Params{}, nil, nil, false
	}
	return Params{Memory: m, Time: t, Parallelism: par, KeyLen: uint32(len(dk))}, salt, dk, true
}
