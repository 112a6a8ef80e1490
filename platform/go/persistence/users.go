package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const UsersTable = "users"

// PlatformRole is the global staff role orthogonal to church membership.
// A user with a non-null platform role is a platform identity.
type PlatformRole string

const (
	PlatformRoleAdmin PlatformRole = "platform_admin"
	PlatformRoleStaff PlatformRole = "platform_staff"
	PlatformRoleSales PlatformRole = "sales_rep"
)

// Valid reports whether the value is one of the known platform roles.
func (r PlatformRole) Valid() bool {
	switch r {
	case PlatformRoleAdmin, PlatformRoleStaff, PlatformRoleSales:
		return true
	}
	return false
}

// User represents a row in the users table. PlatformRole is nil for
// ordinary church users.
type User struct {
	UserID       uuid.UUID     `db:"user_id"`
	Email        string        `db:"email"`
	PasswordHash string        `db:"password_hash"`
	FullName     string        `db:"full_name"`
	PlatformRole *PlatformRole `db:"platform_role"`
	IsActive     bool          `db:"is_active"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// IsPlatformIdentity reports whether the user holds any global staff role.
func (u User) IsPlatformIdentity() bool {
	return u.PlatformRole != nil
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (duplicated email).
	ErrUserConflict = errors.New("user conflict")
)

// UserStore exposes persistence helpers for the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore returns a store instance; assumes migrations already created the table.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

// CreateUserParams captures the fields required to insert a new user record.
type CreateUserParams struct {
	UserID       uuid.UUID
	Email        string
	PasswordHash string
	FullName     string
	PlatformRole *PlatformRole
}

const userColumns = "user_id, email, password_hash, full_name, platform_role, is_active, created_at, updated_at"

// CreateUser inserts a new user and returns the persisted record.
func (s *UserStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if params.UserID == uuid.Nil {
		return User{}, errors.New("user id is required")
	}
	if params.PlatformRole != nil && !params.PlatformRole.Valid() {
		return User{}, fmt.Errorf("unknown platform role %q", *params.PlatformRole)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, email, password_hash, full_name, platform_role)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, UsersTable, userColumns),
		params.UserID,
		strings.ToLower(strings.TrimSpace(params.Email)),
		params.PasswordHash,
		strings.TrimSpace(params.FullName),
		params.PlatformRole,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUserConflict
		}
		return User{}, err
	}

	return user, nil
}

// GetUser returns a single user by identifier.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE user_id = $1
    `, userColumns, UsersTable), id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	return user, nil
}

// GetUserByEmail returns a single user by normalized email. Used by login.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE email = $1
    `, userColumns, UsersTable), strings.ToLower(strings.TrimSpace(email)))

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	return user, nil
}

// UpdateUserParams represents admin-editable fields.
type UpdateUserParams struct {
	FullName     *string
	PasswordHash *string
	PlatformRole *PlatformRole
	ClearRole    bool
	IsActive     *bool
}

// UpdateUser applies the provided fields and returns the updated record.
func (s *UserStore) UpdateUser(ctx context.Context, id uuid.UUID, params UpdateUserParams) (User, error) {
	setParts := []string{}
	var args []any

	if params.FullName != nil {
		args = append(args, strings.TrimSpace(*params.FullName))
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if params.PasswordHash != nil {
		args = append(args, *params.PasswordHash)
		setParts = append(setParts, fmt.Sprintf("password_hash = $%d", len(args)))
	}
	if params.ClearRole {
		setParts = append(setParts, "platform_role = NULL")
	} else if params.PlatformRole != nil {
		if !params.PlatformRole.Valid() {
			return User{}, fmt.Errorf("unknown platform role %q", *params.PlatformRole)
		}
		args = append(args, *params.PlatformRole)
		setParts = append(setParts, fmt.Sprintf("platform_role = $%d", len(args)))
	}
	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		setParts = append(setParts, fmt.Sprintf("is_active = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return User{}, errors.New("no fields to update")
	}

	args = append(args, id)

	query := fmt.Sprintf(`
        UPDATE %s
        SET %s, updated_at = NOW()
        WHERE user_id = $%d
        RETURNING %s
    `, UsersTable, strings.Join(setParts, ", "), len(args), userColumns)

	row := s.pool.QueryRow(ctx, query, args...)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return User{}, ErrUserConflict
		}
		return User{}, err
	}

	return user, nil
}

// DeleteUser removes a user by identifier.
func (s *UserStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrUserNotFound
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, UsersTable), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	var role *string

	if err := row.Scan(&user.UserID, &user.Email, &user.PasswordHash, &user.FullName, &role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}

	if role != nil {
		r := PlatformRole(*role)
		user.PlatformRole = &r
	}

	return user, nil
}
