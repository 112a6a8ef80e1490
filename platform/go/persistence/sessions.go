package persistence

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const SessionsTable = "sessions"

// sessionTokenPrefix identifies steeple session tokens.
const sessionTokenPrefix = "st_"

// sessionTokenBytes is the number of random bytes per token (256 bits).
const sessionTokenBytes = 32

// DefaultSessionTTL is the fixed session lifetime applied when the caller
// does not configure one. Expiry is set at creation and never extended.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionRecord is a server-side session row. The raw token is never stored;
// lookups go through its SHA-256 digest.
type SessionRecord struct {
	TokenDigest    string     `db:"token_digest"`
	UserID         uuid.UUID  `db:"user_id"`
	ActiveChurchID *uuid.UUID `db:"active_church_id"`
	ExpiresAt      time.Time  `db:"expires_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UserAgent      string     `db:"user_agent"`
	IPAddress      string     `db:"ip_address"`
}

var (
	// ErrSessionNotFound covers both unknown and expired tokens; callers
	// cannot distinguish the two, which is intentional.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionStore persists opaque sessions. Sessions are database rows rather
// than self-contained signed tokens so revocation is immediate and role
// changes take effect on the very next request.
type SessionStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionStore returns a store with the given fixed session TTL
// (DefaultSessionTTL when zero).
func NewSessionStore(pool *pgxpool.Pool, ttl time.Duration) (*SessionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{pool: pool, ttl: ttl, now: time.Now}, nil
}

// NewSessionToken generates an unguessable opaque token and its storage
// digest. The raw token carries no claims and is not reversible.
func NewSessionToken() (token string, digest string, err error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token = sessionTokenPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return token, DigestSessionToken(token), nil
}

// DigestSessionToken computes the SHA-256 hex digest used as the storage key.
func DigestSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSessionParams captures creation metadata for a new session.
type CreateSessionParams struct {
	UserID         uuid.UUID
	ActiveChurchID *uuid.UUID
	UserAgent      string
	IPAddress      string
}

const sessionColumns = "token_digest, user_id, active_church_id, expires_at, created_at, user_agent, ip_address"

// Create writes a session row with a fixed expiry and returns the raw token.
// The token is handed to the caller exactly once, for the client cookie.
func (s *SessionStore) Create(ctx context.Context, params CreateSessionParams) (string, SessionRecord, error) {
	if params.UserID == uuid.Nil {
		return "", SessionRecord{}, errors.New("user id is required")
	}

	token, digest, err := NewSessionToken()
	if err != nil {
		return "", SessionRecord{}, err
	}

	expiresAt := s.now().Add(s.ttl)

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (token_digest, user_id, active_church_id, expires_at, user_agent, ip_address)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, SessionsTable, sessionColumns),
		digest, params.UserID, params.ActiveChurchID, expiresAt, params.UserAgent, params.IPAddress,
	)

	record, err := scanSession(row)
	if err != nil {
		return "", SessionRecord{}, fmt.Errorf("create session: %w", err)
	}

	return token, record, nil
}

// Lookup resolves a raw token to its session row. Expired rows are deleted
// inside the call and reported as ErrSessionNotFound (lazy expiry); the
// expiry is never extended on read.
func (s *SessionStore) Lookup(ctx context.Context, token string) (SessionRecord, error) {
	digest := DigestSessionToken(token)

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE token_digest = $1
    `, sessionColumns, SessionsTable), digest)

	record, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, err
	}

	if !record.ExpiresAt.After(s.now()) {
		if _, delErr := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE token_digest = $1`, SessionsTable), digest); delErr != nil {
			return SessionRecord{}, fmt.Errorf("delete expired session: %w", delErr)
		}
		return SessionRecord{}, ErrSessionNotFound
	}

	return record, nil
}

// SetActiveChurch points the session at a church. Eligibility is checked by
// the caller (authz) before this row update. Concurrent switches on the same
// session are last-write-wins; losing the race only changes which church a
// subsequent request operates on.
func (s *SessionStore) SetActiveChurch(ctx context.Context, token string, churchID uuid.UUID) error {
	digest := DigestSessionToken(token)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET active_church_id = $1
        WHERE token_digest = $2 AND expires_at > $3
    `, SessionsTable), churchID, digest, s.now())
	if err != nil {
		return fmt.Errorf("set active church: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a single session (logout). Deleting an unknown token is
// not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	digest := DigestSessionToken(token)

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE token_digest = $1`, SessionsTable), digest); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session for the user ("log out everywhere").
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, SessionsTable), userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired batch-deletes rows past expiry. Storage hygiene only;
// correctness never depends on this running because Lookup expires lazily.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, SessionsTable), s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (SessionRecord, error) {
	var record SessionRecord

	if err := row.Scan(&record.TokenDigest, &record.UserID, &record.ActiveChurchID, &record.ExpiresAt, &record.CreatedAt, &record.UserAgent, &record.IPAddress); err != nil {
		return SessionRecord{}, err
	}

	return record, nil
}
