// Package credential hashes and verifies account secrets. Two stored formats
// coexist: a legacy bare SHA-256 hex digest and the current salted form
// "<32-hex salt>:<64-hex digest>". New credentials are always salted; the
// legacy path survives only to verify historical records and to flag them for
// upgrade after a successful login.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// SaltBytes is the raw salt size: 128 bits.
	SaltBytes = 16

	// saltHexLen and hashHexLen fix the exact stored shape.
	saltHexLen = SaltBytes * 2
	hashHexLen = sha256.Size * 2

	// MaxFailedAttempts is the number of consecutive failed verifications the
	// datastore should tolerate before locking the account.
	MaxFailedAttempts = 5

	// LockoutDuration is how long a lockout lasts once triggered.
	LockoutDuration = 15 * time.Minute
)

// Kind discriminates the two stored credential formats.
type Kind int

const (
	KindLegacy Kind = iota
	KindSalted
)

// Stored is the parsed form of a persisted credential string.
type Stored struct {
	Kind Kind
	Salt string // hex, empty for legacy
	Hash string // hex
}

// Verification is the outcome of checking a secret against a stored value.
// NeedsUpgrade is set only when a legacy credential verified successfully, so
// a failed attempt never leaks whether the record is upgrade-eligible.
type Verification struct {
	Valid        bool
	NeedsUpgrade bool
}

// GenerateSalt returns a fresh uniformly random salt as lowercase hex.
// An error indicates the platform random source is unavailable.
func GenerateSalt() (string, error) {
	buf := make([]byte, SaltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("credential: read random salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashWithSalt digests "salt:secret" with SHA-256 and returns lowercase hex.
func HashWithSalt(secret, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// HashLegacy digests the bare secret. Retained for verifying historical
// records only; never use it to create a credential.
func HashLegacy(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifyWithSalt recomputes the salted hash and compares it to expected in
// constant time. A length mismatch is reported as not valid, never as an
// error.
func VerifyWithSalt(secret, salt, expected string) bool {
	return constantTimeEqual(HashWithSalt(secret, salt), expected)
}

// IsSaltedFormat reports whether stored matches the exact salted shape:
// fixed-length hex, one colon, fixed-length hex.
func IsSaltedFormat(stored string) bool {
	_, ok := splitSalted(stored)
	return ok
}

// Parse classifies a stored credential string. Anything that does not match
// the salted shape is treated as legacy, including malformed input; the
// subsequent comparison then simply fails.
func Parse(stored string) Stored {
	if parts, ok := splitSalted(stored); ok {
		return Stored{Kind: KindSalted, Salt: parts[0], Hash: parts[1]}
	}
	return Stored{Kind: KindLegacy, Hash: stored}
}

// CreateSalted generates a salt, hashes the secret and serializes both into
// the stored "salt:hash" form. This is the only way new credentials are set.
func CreateSalted(secret string) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	return salt + ":" + HashWithSalt(secret, salt), nil
}

// Verify checks a secret against a stored credential in either format.
func Verify(secret, stored string) Verification {
	switch parsed := Parse(stored); parsed.Kind {
	case KindSalted:
		return Verification{Valid: VerifyWithSalt(secret, parsed.Salt, parsed.Hash)}
	default:
		valid := constantTimeEqual(HashLegacy(secret), parsed.Hash)
		return Verification{Valid: valid, NeedsUpgrade: valid}
	}
}

// IsLockoutExpired reports whether a lockout that started at lockedAt has
// elapsed by now. A zero lockedAt means no lockout is in effect.
func IsLockoutExpired(lockedAt, now time.Time) bool {
	if lockedAt.IsZero() {
		return true
	}
	return !now.Before(lockedAt.Add(LockoutDuration))
}

func splitSalted(stored string) ([2]string, bool) {
	var parts [2]string
	i := strings.IndexByte(stored, ':')
	if i != saltHexLen || len(stored) != saltHexLen+1+hashHexLen {
		return parts, false
	}
	salt, hash := stored[:i], stored[i+1:]
	if !isLowerHex(salt) || !isLowerHex(hash) {
		return parts, false
	}
	parts[0], parts[1] = salt, hash
	return parts, true
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// constantTimeEqual compares two strings without short-circuiting on the
// first mismatching byte. Unequal lengths are rejected up front; the timing
// of that check reveals only the length, which is not secret here.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
