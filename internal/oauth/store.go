package oauth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"
)

// NOTE: PostgresStore assumes the following table exists:
//
//	oauth_credentials (owner_id text primary key, email text, access_token text,
//	                   refresh_token text, expiry timestamptz, updated_at timestamptz)
//
// The shared manager credential is the row keyed by ManagerOwnerID.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Get(ctx context.Context, ownerID string) (Credential, error) {
	const q = `
SELECT owner_id, COALESCE(email, ''), COALESCE(access_token, ''), COALESCE(refresh_token, ''),
       expiry, updated_at
FROM oauth_credentials
WHERE owner_id = $1
`
	var (
		c      Credential
		expiry sql.NullTime
	)
	if err := s.db.QueryRowContext(ctx, q, ownerID).Scan(
		&c.OwnerID,
		&c.Email,
		&c.AccessToken,
		&c.RefreshToken,
		&expiry,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, ErrNoCredential
		}
		return Credential{}, err
	}
	if expiry.Valid {
		c.Expiry = expiry.Time
	}
	return c, nil
}

func (s *PostgresStore) UpdateIfUnchanged(ctx context.Context, c Credential, prevUpdatedAt time.Time) (bool, error) {
	const q = `
UPDATE oauth_credentials
SET access_token = $2, refresh_token = $3, expiry = $4, updated_at = $5
WHERE owner_id = $1 AND updated_at = $6
`
	res, err := s.db.ExecContext(ctx, q, c.OwnerID, c.AccessToken, c.RefreshToken, c.Expiry, c.UpdatedAt, prevUpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_credentials WHERE owner_id = $1`, ownerID)
	return err
}

// CalendarOwner finds the user whose connected calendar belongs to email.
func (s *PostgresStore) CalendarOwner(ctx context.Context, email string) (string, bool, error) {
	const q = `
SELECT owner_id FROM oauth_credentials
WHERE lower(email) = lower($1) AND owner_id <> $2
LIMIT 1
`
	var owner string
	if err := s.db.QueryRowContext(ctx, q, strings.TrimSpace(email), ManagerOwnerID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return owner, true, nil
}

// MemoryStore is an in-memory Store useful for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]Credential
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{creds: map[string]Credential{}} }

func (s *MemoryStore) Put(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.OwnerID] = c
}

func (s *MemoryStore) Get(ctx context.Context, ownerID string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[ownerID]
	if !ok {
		return Credential{}, ErrNoCredential
	}
	return c, nil
}

func (s *MemoryStore) UpdateIfUnchanged(ctx context.Context, c Credential, prevUpdatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.creds[c.OwnerID]
	if !ok || !cur.UpdatedAt.Equal(prevUpdatedAt) {
		return false, nil
	}
	s.creds[c.OwnerID] = c
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, ownerID)
	return nil
}

func (s *MemoryStore) CalendarOwner(ctx context.Context, email string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.creds {
		if id != ManagerOwnerID && strings.EqualFold(c.Email, strings.TrimSpace(email)) {
			return id, true, nil
		}
	}
	return "", false, nil
}
