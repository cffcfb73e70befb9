package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Accounts() AccountStore
	Sessions() SessionStore
}

// AccountStore manages accounts and their lockout counters.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpdateCredential(ctx context.Context, id, credentialHash string) error

	// RecordFailure increments the failed-attempt counter and, when the new
	// count reaches threshold, stamps lockedAt — all in one atomic statement
	// so concurrent failures cannot race past the lock. Returns the new count.
	RecordFailure(ctx context.Context, id string, threshold int, lockedAt time.Time) (int, error)

	// ResetFailures clears the counter and any lockout timestamp.
	ResetFailures(ctx context.Context, id string) error
}

// SessionStore manages session lifecycle. Lookups are by token hash; the
// plaintext token never reaches the store.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Touch(ctx context.Context, id string, lastSeen time.Time) error
	Revoke(ctx context.Context, id string) error
	RevokeByAccount(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
