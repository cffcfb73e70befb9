package auth

import "time"

// Account represents a person using the task boards. CredentialHash holds
// either the current salted form or a legacy bare digest; the credential
// package owns that distinction. The plaintext secret never appears here.
type Account struct {
	ID             string
	Email          string
	CredentialHash string
	Status         string
	FailedAttempts int
	LockedAt       time.Time // zero when no lockout is in effect
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Account statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Session represents an authenticated browser session. Only hashes of the
// session and anti-forgery tokens are persisted; the plaintext values are
// handed to the client once at login.
type Session struct {
	ID         string
	AccountID  string
	TokenHash  string
	CSRFHash   string
	IssuedAt   time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time // absolute ceiling, independent of activity
	Revoked    bool
}
