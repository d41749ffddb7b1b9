package tokens

import (
	"encoding/base64"
	"testing"
)

func TestNewPair(t *testing.T) {
	p, err := NewPair(32)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(p.Token)
	if err != nil || len(raw) != 32 {
		t.Fatalf("token must decode to 32 bytes, got %d (%v)", len(raw), err)
	}
	if p.Hash != SHA256Hex(p.Token) {
		t.Fatalf("hash mismatch")
	}
	if len(p.Hash) != 64 {
		t.Fatalf("hex hash length = %d", len(p.Hash))
	}

	q, _ := NewPair(32)
	if q.Token == p.Token {
		t.Fatalf("tokens must differ")
	}
}

func TestSHA256Hex_Known(t *testing.T) {
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := SHA256Hex("abc"); got != want {
		t.Fatalf("SHA256Hex(abc) = %s", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("abc", "abc") {
		t.Fatal("equal strings must match")
	}
	if Equal("abc", "abd") || Equal("abc", "ab") {
		t.Fatal("different strings must not match")
	}
}
