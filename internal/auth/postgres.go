package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts() AccountStore { return &accountStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore { return &sessionStore{db: s.db} }

// Account store ------------------------------------------------------------
type accountStore struct{ db *sql.DB }

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, email, credential_hash, status) values($1,$2,$3,$4)`,
		a.ID, a.Email, a.CredentialHash, a.Status,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, email, credential_hash, status, failed_attempts, locked_at, created_at, updated_at
		   from accounts where id=$1`, id))
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, email, credential_hash, status, failed_attempts, locked_at, created_at, updated_at
		   from accounts where email=$1`, email))
}

func (s *accountStore) scanOne(row *sql.Row) (*Account, error) {
	var (
		a        Account
		lockedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Email, &a.CredentialHash, &a.Status,
		&a.FailedAttempts, &lockedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lockedAt.Valid {
		a.LockedAt = lockedAt.Time
	}
	return &a, nil
}

func (s *accountStore) UpdateCredential(ctx context.Context, id, credentialHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set credential_hash=$2, updated_at=now() where id=$1`,
		id, credentialHash,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RecordFailure runs as a single UPDATE so two concurrent failed attempts
// cannot both observe a pre-threshold counter and skip the lock.
func (s *accountStore) RecordFailure(ctx context.Context, id string, threshold int, lockedAt time.Time) (int, error) {
	var failures int
	err := s.db.QueryRowContext(ctx,
		`update accounts
		    set failed_attempts = failed_attempts + 1,
		        locked_at = case when failed_attempts + 1 >= $2 then $3 else locked_at end,
		        updated_at = now()
		  where id = $1
		  returning failed_attempts`,
		id, threshold, lockedAt,
	).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return failures, err
}

func (s *accountStore) ResetFailures(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set failed_attempts=0, locked_at=null, updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Session store ------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, account_id, token_hash, csrf_hash, issued_at, last_seen_at, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		sess.ID, sess.AccountID, sess.TokenHash, sess.CSRFHash,
		sess.IssuedAt, sess.LastSeenAt, sess.ExpiresAt,
	)
	return err
}

func (s *sessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, account_id, token_hash, csrf_hash, issued_at, last_seen_at, expires_at, revoked
		   from sessions where token_hash=$1`, tokenHash)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.AccountID, &sess.TokenHash, &sess.CSRFHash,
		&sess.IssuedAt, &sess.LastSeenAt, &sess.ExpiresAt, &sess.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) Touch(ctx context.Context, id string, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set last_seen_at=$2 where id=$1 and not revoked`, id, lastSeen)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sessionStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked=true where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sessionStore) RevokeByAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked=true where account_id=$1 and not revoked`, accountID)
	return err
}

func (s *sessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from sessions where expires_at < $1 or revoked`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
