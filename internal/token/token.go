// Package token issues high-entropy opaque tokens for sessions and
// anti-forgery checks. Only token hashes are meant to be persisted; the
// plaintext value is handed to the caller once.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// DefaultByteLength is the entropy of session tokens before encoding.
	DefaultByteLength = 32

	// CSRFByteLength is the entropy of anti-forgery tokens before encoding.
	CSRFByteLength = 32

	// SessionIdleTimeout invalidates a session after this much inactivity.
	// Enforced by the session store; exposed here as policy.
	SessionIdleTimeout = 30 * time.Minute

	// SessionMaxAge invalidates a session this long after issuance no matter
	// how recently it was used.
	SessionMaxAge = 12 * time.Hour
)

// Generate returns byteLength random bytes encoded with the URL-safe,
// padding-free base64 alphabet. Lengths below DefaultByteLength are raised to
// it so callers cannot weaken the policy by accident. An error here means the
// platform cannot provide a secure random source and must be treated as fatal
// by the caller.
func Generate(byteLength int) (string, error) {
	if byteLength < DefaultByteLength {
		byteLength = DefaultByteLength
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the lowercase hex SHA-256 digest of a token, the only form a
// datastore should ever hold.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// NewSessionToken returns a fresh session token and its storable hash.
func NewSessionToken() (plaintext, hash string, err error) {
	plaintext, err = Generate(DefaultByteLength)
	if err != nil {
		return "", "", err
	}
	return plaintext, Hash(plaintext), nil
}

// NewCSRFToken returns a fresh anti-forgery token and its storable hash.
// The encoded form uses only letters, digits, '-' and '_', so it is safe in
// headers, cookies and form fields without escaping.
func NewCSRFToken() (plaintext, hash string, err error) {
	plaintext, err = Generate(CSRFByteLength)
	if err != nil {
		return "", "", err
	}
	return plaintext, Hash(plaintext), nil
}
