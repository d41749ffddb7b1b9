// Package totp envuelve github.com/pquerna/otp con los parámetros fijos del producto:
// SHA1, 6 dígitos, período de 30s y tolerancia de ±1 paso.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	Period = 30
	Skew   = 1
	Digits = otp.DigitsSix
)

// Key es el resultado de un enrolamiento: secreto base32 y URL otpauth:// para QR.
type Key struct {
	Secret string
	URL    string
}

// Generate crea un secreto nuevo de 20 bytes para account.
func Generate(issuer, account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		SecretSize:  20,
		Digits:      Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("totp: generate: %w", err)
	}
	return Key{Secret: k.Secret(), URL: k.URL()}, nil
}

// NormalizeCode quita espacios y guiones ("123 456" -> "123456").
func NormalizeCode(code string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
}

// Validate verifica code en t con ventana ±Skew.
func Validate(secret, code string, t time.Time) bool {
	code = NormalizeCode(code)
	if len(code) != Digits.Length() {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Code genera el código vigente en t. Lo usan los tests.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    Period,
		Digits:    Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}
