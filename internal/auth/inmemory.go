package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemory is a Store for development and tests. All methods are safe for
// concurrent use; the failure counter gets the same increment-and-check
// atomicity the SQL store provides, just under a mutex.
type InMemory struct {
	mu       sync.Mutex
	accounts map[string]*Account // by id
	byEmail  map[string]string   // email -> id
	sessions map[string]*Session // by token hash
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
		sessions: make(map[string]*Session),
	}
}

func (m *InMemory) Accounts() AccountStore { return (*memAccounts)(m) }
func (m *InMemory) Sessions() SessionStore { return (*memSessions)(m) }

type memAccounts InMemory

func (m *memAccounts) Create(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[a.Email]; exists {
		return ErrAlreadyExists
	}
	cp := *a
	m.accounts[a.ID] = &cp
	m.byEmail[a.Email] = a.ID
	return nil
}

func (m *memAccounts) Find(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *memAccounts) UpdateCredential(ctx context.Context, id, credentialHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.CredentialHash = credentialHash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memAccounts) RecordFailure(ctx context.Context, id string, threshold int, lockedAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		a.LockedAt = lockedAt
	}
	return a.FailedAttempts, nil
}

func (m *memAccounts) ResetFailures(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedAt = time.Time{}
	return nil
}

type memSessions InMemory

func (m *memSessions) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *memSessions) FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Touch(ctx context.Context, id string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id && !s.Revoked {
			s.LastSeenAt = lastSeen
			return nil
		}
	}
	return ErrNotFound
}

func (m *memSessions) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			s.Revoked = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *memSessions) RevokeByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			s.Revoked = true
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.sessions {
		if s.Revoked || s.ExpiresAt.Before(before) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}
