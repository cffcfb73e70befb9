package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskora.org/internal/credential"
	"taskora.org/internal/ids"
	"taskora.org/internal/token"
)

const (
	defaultIssuer    = "taskora"
	defaultAccessTTL = 15 * time.Minute
)

// Service composes the credential and token primitives over a Store. It owns
// the full login lifecycle: verification, the legacy-hash upgrade, lockout
// bookkeeping and session issuance.
type Service struct {
	store     Store
	now       func() time.Time
	jwtSecret []byte
	issuer    string
	accessTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithJWTSecret sets the HMAC secret used to sign access tokens.
func WithJWTSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: jwt secret is empty")
		}
		s.jwtSecret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the access token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:     store,
		now:       time.Now,
		issuer:    defaultIssuer,
		accessTTL: defaultAccessTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Normalize lowercases and trims an email for storage and lookup.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account with a salted credential.
func (s *Service) Register(ctx context.Context, email, secret string) (*Account, error) {
	email = Normalize(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: secret", ErrInvalidInput)
	}
	stored, err := credential.CreateSalted(secret)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	acct := &Account{
		ID:             uuid.NewString(),
		Email:          email,
		CredentialHash: stored,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Accounts().Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// LoginResult carries everything the transport layer hands to the client at
// login. SessionToken and CSRFToken are the only copies of those plaintexts
// that will ever exist.
type LoginResult struct {
	Account      *Account
	Session      *Session
	SessionToken string
	CSRFToken    string
	AccessToken  string
	AccessExpiry time.Time
}

// Login verifies the secret, performs the legacy-hash upgrade when flagged,
// maintains the lockout counter and issues a fresh session.
func (s *Service) Login(ctx context.Context, email, secret string) (*LoginResult, error) {
	acct, err := s.store.Accounts().FindByEmail(ctx, Normalize(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if acct.Status != StatusActive {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if !credential.IsLockoutExpired(acct.LockedAt, now) {
		return nil, ErrLocked
	}
	if !acct.LockedAt.IsZero() {
		// Lockout has elapsed; start a clean attempt window.
		if err := s.store.Accounts().ResetFailures(ctx, acct.ID); err != nil {
			return nil, err
		}
		acct.FailedAttempts = 0
		acct.LockedAt = time.Time{}
	}

	verdict := credential.Verify(secret, acct.CredentialHash)
	if !verdict.Valid {
		failures, err := s.store.Accounts().RecordFailure(ctx, acct.ID, credential.MaxFailedAttempts, now)
		if err != nil {
			return nil, err
		}
		if failures >= credential.MaxFailedAttempts {
			return nil, ErrLocked
		}
		return nil, ErrInvalidCredentials
	}

	if verdict.NeedsUpgrade {
		// One-way Legacy -> Salted transition after a successful
		// verification; the plaintext is still in hand, so re-hash now.
		upgraded, err := credential.CreateSalted(secret)
		if err != nil {
			return nil, err
		}
		if err := s.store.Accounts().UpdateCredential(ctx, acct.ID, upgraded); err != nil {
			return nil, err
		}
		acct.CredentialHash = upgraded
	}

	if acct.FailedAttempts > 0 {
		if err := s.store.Accounts().ResetFailures(ctx, acct.ID); err != nil {
			return nil, err
		}
		acct.FailedAttempts = 0
	}

	return s.issueSession(ctx, acct, now)
}

func (s *Service) issueSession(ctx context.Context, acct *Account, now time.Time) (*LoginResult, error) {
	sessionToken, sessionHash, err := token.NewSessionToken()
	if err != nil {
		return nil, err
	}
	csrfToken, csrfHash, err := token.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:         ids.New(),
		AccountID:  acct.ID,
		TokenHash:  sessionHash,
		CSRFHash:   csrfHash,
		IssuedAt:   now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(token.SessionMaxAge),
	}
	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, err
	}

	res := &LoginResult{
		Account:      acct,
		Session:      sess,
		SessionToken: sessionToken,
		CSRFToken:    csrfToken,
	}
	if len(s.jwtSecret) > 0 {
		access, expiry, err := s.AccessToken(acct.ID, sess.ID)
		if err != nil {
			return nil, err
		}
		res.AccessToken = access
		res.AccessExpiry = expiry
	}
	return res, nil
}

// Authenticate resolves a plaintext session token to its session, enforcing
// both expiry windows: the absolute max age and the idle timeout. A valid
// lookup slides the activity timestamp forward.
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (*Session, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil, ErrInvalidToken
	}
	sess, err := s.store.Sessions().FindByTokenHash(ctx, token.Hash(sessionToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if sess.Revoked {
		return nil, ErrInvalidToken
	}

	now := s.now().UTC()
	if now.After(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	if now.Sub(sess.LastSeenAt) > token.SessionIdleTimeout {
		return nil, ErrSessionExpired
	}

	if err := s.store.Sessions().Touch(ctx, sess.ID, now); err != nil {
		return nil, err
	}
	sess.LastSeenAt = now
	return sess, nil
}

// VerifyCSRF checks a presented anti-forgery token against the session's
// stored hash in constant time.
func (s *Service) VerifyCSRF(sess *Session, csrfToken string) bool {
	if sess == nil || csrfToken == "" {
		return false
	}
	presented := token.Hash(csrfToken)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(sess.CSRFHash)) == 1
}

// Logout revokes the session behind a plaintext token. Unknown tokens are
// reported as invalid, not as an internal failure.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	sess, err := s.store.Sessions().FindByTokenHash(ctx, token.Hash(sessionToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return s.store.Sessions().Revoke(ctx, sess.ID)
}

// PurgeExpiredSessions removes sessions past their absolute expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.store.Sessions().DeleteExpired(ctx, s.now().UTC())
}
