package token

import (
	"encoding/base64"
	"regexp"
	"strings"
	"testing"
)

func TestGenerateIsURLSafe(t *testing.T) {
	tok, err := Generate(DefaultByteLength)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token contains non URL-safe characters: %q", tok)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9_-]+$`).MatchString(tok) {
		t.Fatalf("token alphabet out of range: %q", tok)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("token does not decode: %v", err)
	}
	if len(raw) != DefaultByteLength {
		t.Fatalf("expected %d bytes of entropy, got %d", DefaultByteLength, len(raw))
	}
}

func TestGenerateEnforcesMinimumLength(t *testing.T) {
	tok, err := Generate(8)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) < DefaultByteLength {
		t.Fatalf("short byte length was not raised to the floor: %d", len(raw))
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		tok, err := Generate(DefaultByteLength)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d iterations", i)
		}
		seen[tok] = struct{}{}
	}
}

func TestHashDeterministicAndHex(t *testing.T) {
	h1 := Hash("some-token")
	h2 := Hash("some-token")
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
	if h1 == Hash("other-token") {
		t.Fatal("distinct tokens produced identical hashes")
	}
}

func TestNewSessionTokenPairMatches(t *testing.T) {
	plaintext, hash, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken: %v", err)
	}
	if Hash(plaintext) != hash {
		t.Fatal("returned hash does not match returned token")
	}
}

func TestNewCSRFTokenPairMatches(t *testing.T) {
	plaintext, hash, err := NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken: %v", err)
	}
	if Hash(plaintext) != hash {
		t.Fatal("returned hash does not match returned token")
	}
}

func TestExpiryPolicyOrdering(t *testing.T) {
	if SessionIdleTimeout >= SessionMaxAge {
		t.Fatal("idle timeout must be shorter than absolute max age")
	}
}
