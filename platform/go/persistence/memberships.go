package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const MembershipsTable = "memberships"

// MembershipRole is the role a user holds inside a single church. It is
// scoped to that one membership, never to the user globally.
type MembershipRole string

const (
	RoleViewer MembershipRole = "viewer"
	RoleEditor MembershipRole = "editor"
	RoleAdmin  MembershipRole = "admin"
)

// Rank orders roles viewer < editor < admin for threshold checks.
func (r MembershipRole) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants at least the privileges of other.
func (r MembershipRole) AtLeast(other MembershipRole) bool {
	return r.Rank() >= other.Rank() && r.Rank() > 0
}

// Valid reports whether the value is one of the known membership roles.
func (r MembershipRole) Valid() bool {
	return r.Rank() > 0
}

// Membership is the join record between a user and a church. A user may hold
// at most one active membership per church.
type Membership struct {
	MembershipID uuid.UUID      `db:"membership_id"`
	UserID       uuid.UUID      `db:"user_id"`
	ChurchID     uuid.UUID      `db:"church_id"`
	Role         MembershipRole `db:"role"`
	IsActive     bool           `db:"is_active"`
	IsPrimary    bool           `db:"is_primary"`
	CreatedAt    time.Time      `db:"created_at"`
}

var (
	// ErrMembershipNotFound indicates no active membership matched.
	ErrMembershipNotFound = errors.New("membership not found")
	// ErrMembershipConflict indicates the user already holds an active membership in that church.
	ErrMembershipConflict = errors.New("membership conflict")
)

// MembershipStore provides access to the memberships join table.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a store; assumes migrations already created the table.
func NewMembershipStore(pool *pgxpool.Pool) (*MembershipStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &MembershipStore{pool: pool}, nil
}

const membershipColumns = "membership_id, user_id, church_id, role, is_active, is_primary, created_at"

// CreateMembershipParams captures the fields required to grant membership.
type CreateMembershipParams struct {
	MembershipID uuid.UUID
	UserID       uuid.UUID
	ChurchID     uuid.UUID
	Role         MembershipRole
	IsPrimary    bool
}

// Create grants an active membership. Fails with ErrMembershipConflict when
// the user already has an active membership in the church.
func (s *MembershipStore) Create(ctx context.Context, params CreateMembershipParams) (Membership, error) {
	if params.MembershipID == uuid.Nil {
		return Membership{}, errors.New("membership id is required")
	}
	if !params.Role.Valid() {
		return Membership{}, fmt.Errorf("unknown membership role %q", params.Role)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (membership_id, user_id, church_id, role, is_primary)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, MembershipsTable, membershipColumns),
		params.MembershipID, params.UserID, params.ChurchID, params.Role, params.IsPrimary,
	)

	membership, err := scanMembership(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Membership{}, ErrMembershipConflict
		}
		return Membership{}, err
	}

	return membership, nil
}

// GetActive returns the single active membership for (user, church).
func (s *MembershipStore) GetActive(ctx context.Context, userID, churchID uuid.UUID) (Membership, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE user_id = $1 AND church_id = $2 AND is_active = TRUE
    `, membershipColumns, MembershipsTable), userID, churchID)

	membership, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrMembershipNotFound
		}
		return Membership{}, err
	}

	return membership, nil
}

// ListActiveForUser returns all active memberships for the user, primary first.
func (s *MembershipStore) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE user_id = $1 AND is_active = TRUE
        ORDER BY is_primary DESC, created_at ASC
    `, membershipColumns, MembershipsTable), userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]Membership, 0)
	for rows.Next() {
		membership, scanErr := scanMembership(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan membership: %w", scanErr)
		}
		memberships = append(memberships, membership)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}

	return memberships, nil
}

// SetRole changes the role of the active membership for (user, church).
func (s *MembershipStore) SetRole(ctx context.Context, userID, churchID uuid.UUID, role MembershipRole) (Membership, error) {
	if !role.Valid() {
		return Membership{}, fmt.Errorf("unknown membership role %q", role)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET role = $1
        WHERE user_id = $2 AND church_id = $3 AND is_active = TRUE
        RETURNING %s
    `, MembershipsTable, membershipColumns), role, userID, churchID)

	membership, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrMembershipNotFound
		}
		return Membership{}, err
	}

	return membership, nil
}

// Deactivate revokes the active membership for (user, church). Access is
// stripped on the next resolution; there is no grace period.
func (s *MembershipStore) Deactivate(ctx context.Context, userID, churchID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET is_active = FALSE
        WHERE user_id = $1 AND church_id = $2 AND is_active = TRUE
    `, MembershipsTable), userID, churchID)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func scanMembership(row pgx.Row) (Membership, error) {
	var membership Membership

	if err := row.Scan(&membership.MembershipID, &membership.UserID, &membership.ChurchID, &membership.Role, &membership.IsActive, &membership.IsPrimary, &membership.CreatedAt); err != nil {
		return Membership{}, err
	}

	return membership, nil
}
