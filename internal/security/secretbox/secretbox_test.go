package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := New(base64.StdEncoding.EncodeToString(testKey()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := "JBSWY3DPEHPK3PXP"
	ct, err := box.Seal(msg)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(ct, msg) {
		t.Fatalf("ciphertext leaks plaintext")
	}
	pt, err := box.Open(ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	box, _ := New(hex.EncodeToString(testKey()))
	ct, _ := box.Seal("secreto")
	parts := strings.Split(ct, "|")
	raw, _ := base64.StdEncoding.DecodeString(parts[1])
	raw[0] ^= 0xFF
	tampered := parts[0] + "|" + base64.StdEncoding.EncodeToString(raw)

	if _, err := box.Open(tampered); err == nil {
		t.Fatalf("expected auth error on tampered ciphertext")
	}
	if _, err := box.Open("sin-separador"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	a, _ := New(base64.StdEncoding.EncodeToString(testKey()))
	other := testKey()
	other[0] = 0xAA
	b, _ := New(base64.StdEncoding.EncodeToString(other))

	ct, _ := a.Seal("secreto")
	if _, err := b.Open(ct); err == nil {
		t.Fatalf("expected error with wrong key")
	}
}

func TestNew_InvalidKey(t *testing.T) {
	for _, k := range []string{"", "corta", base64.StdEncoding.EncodeToString([]byte("16-bytes-key-xxx"))} {
		if _, err := New(k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", k, err)
		}
	}
}
