package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskora.org/internal/credential"
	"taskora.org/internal/token"
)

func newTestService(t *testing.T, store Store, now *time.Time, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return *now }))
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	acct, err := svc.Register(ctx, " Alice@Example.com ", "1234")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acct.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", acct.Email)
	}
	if !credential.IsSaltedFormat(acct.CredentialHash) {
		t.Fatalf("new account got a non-salted credential: %q", acct.CredentialHash)
	}

	res, err := svc.Login(ctx, "alice@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.SessionToken == "" || res.CSRFToken == "" {
		t.Fatal("login did not return plaintext tokens")
	}
	if res.Session.TokenHash != token.Hash(res.SessionToken) {
		t.Fatal("persisted hash does not match issued token")
	}
	if res.Session.ExpiresAt != now.Add(token.SessionMaxAge) {
		t.Fatalf("unexpected absolute expiry: %v", res.Session.ExpiresAt)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc := newTestService(t, NewInMemory(), &now)

	if _, err := svc.Register(ctx, "not-an-email", "1234"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Register(ctx, "a@b.c", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginWrongSecret(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	if _, err := svc.Register(ctx, "bob@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Login(ctx, "bob@example.com", "9999"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "1234"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account should look like bad credentials, got %v", err)
	}
}

func TestLoginUpgradesLegacyCredential(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	seed := &Account{
		ID:             "legacy-1",
		Email:          "old@example.com",
		CredentialHash: credential.HashLegacy("1234"),
		Status:         StatusActive,
	}
	if err := store.Accounts().Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Login(ctx, "old@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !credential.IsSaltedFormat(res.Account.CredentialHash) {
		t.Fatal("legacy credential was not upgraded after successful login")
	}

	stored, err := store.Accounts().Find(ctx, "legacy-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !credential.IsSaltedFormat(stored.CredentialHash) {
		t.Fatal("upgrade was not persisted")
	}

	// The upgraded hash still verifies the same secret.
	if _, err := svc.Login(ctx, "old@example.com", "1234"); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestLoginWrongLegacySecretDoesNotUpgrade(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	legacy := credential.HashLegacy("1234")
	seed := &Account{ID: "legacy-2", Email: "old2@example.com", CredentialHash: legacy, Status: StatusActive}
	if err := store.Accounts().Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Login(ctx, "old2@example.com", "9999"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	stored, _ := store.Accounts().Find(ctx, "legacy-2")
	if stored.CredentialHash != legacy {
		t.Fatal("failed login must not touch the stored credential")
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	if _, err := svc.Register(ctx, "carol@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < credential.MaxFailedAttempts-1; i++ {
		if _, err := svc.Login(ctx, "carol@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := svc.Login(ctx, "carol@example.com", "wrong"); !errors.Is(err, ErrLocked) {
		t.Fatalf("threshold attempt should lock, got %v", err)
	}

	// Correct secret is refused while the lockout holds.
	if _, err := svc.Login(ctx, "carol@example.com", "1234"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked during lockout, got %v", err)
	}

	// After the lockout window the counter resets and login succeeds.
	now = now.Add(credential.LockoutDuration)
	if _, err := svc.Login(ctx, "carol@example.com", "1234"); err != nil {
		t.Fatalf("login after lockout expiry: %v", err)
	}
}

func TestAuthenticateLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	if _, err := svc.Register(ctx, "dave@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(ctx, "dave@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	sess, err := svc.Authenticate(ctx, res.SessionToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.AccountID != res.Account.ID {
		t.Fatalf("session resolved to wrong account: %s", sess.AccountID)
	}

	// Activity slides the idle window.
	now = now.Add(token.SessionIdleTimeout - time.Minute)
	if _, err := svc.Authenticate(ctx, res.SessionToken); err != nil {
		t.Fatalf("authenticate within idle window: %v", err)
	}

	// Idle past the timeout invalidates the session.
	now = now.Add(token.SessionIdleTimeout + time.Minute)
	if _, err := svc.Authenticate(ctx, res.SessionToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after idling, got %v", err)
	}
}

func TestAuthenticateMaxAge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	if _, err := svc.Register(ctx, "erin@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(ctx, "erin@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Keep the session active but cross the absolute ceiling.
	step := token.SessionIdleTimeout / 2
	for elapsed := time.Duration(0); elapsed <= token.SessionMaxAge; elapsed += step {
		now = now.Add(step)
		if _, err := svc.Authenticate(ctx, res.SessionToken); err != nil {
			if !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
			return
		}
	}
	t.Fatal("session outlived its absolute maximum age")
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc := newTestService(t, NewInMemory(), &now)

	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "not-a-real-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown token, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	if _, err := svc.Register(ctx, "finn@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(ctx, "finn@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, res.SessionToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, res.SessionToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestVerifyCSRF(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewInMemory()
	svc := newTestService(t, store, &now)

	if _, err := svc.Register(ctx, "gail@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(ctx, "gail@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if !svc.VerifyCSRF(res.Session, res.CSRFToken) {
		t.Fatal("valid anti-forgery token rejected")
	}
	if svc.VerifyCSRF(res.Session, "forged") {
		t.Fatal("forged anti-forgery token accepted")
	}
	if svc.VerifyCSRF(res.Session, "") {
		t.Fatal("empty anti-forgery token accepted")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemory()
	svc := newTestService(t, store, &now, WithJWTSecret("test-secret"), WithIssuer("taskora-test"))

	if _, err := svc.Register(ctx, "hana@example.com", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(ctx, "hana@example.com", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("login did not mint an access token")
	}

	claims, err := svc.ParseAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != res.Account.ID {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.ID != res.Session.ID {
		t.Fatalf("token id should carry session id, got %s", claims.ID)
	}

	// Expired access tokens are rejected.
	now = now.Add(defaultAccessTTL + time.Minute)
	if _, err := svc.ParseAccessToken(res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired access token, got %v", err)
	}
}

func TestParseAccessTokenRejectsForeignSignature(t *testing.T) {
	now := time.Now().UTC()
	store := NewInMemory()
	issuerSvc := newTestService(t, store, &now, WithJWTSecret("secret-a"))
	verifySvc := newTestService(t, store, &now, WithJWTSecret("secret-b"))

	signed, _, err := issuerSvc.AccessToken("acct-1", "sess-1")
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if _, err := verifySvc.ParseAccessToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}
