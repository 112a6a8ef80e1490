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

const ChurchesTable = "churches"

// Church statuses.
const (
	ChurchStatusActive    = "active"
	ChurchStatusSuspended = "suspended"
)

// Church represents a tenant row. A church owns content; it is not itself a
// security principal.
type Church struct {
	ChurchID      uuid.UUID `db:"church_id"`
	Slug          string    `db:"slug"`
	Name          string    `db:"name"`
	Status        string    `db:"status"`
	IsSoftDeleted bool      `db:"is_soft_deleted"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

var (
	// ErrChurchNotFound indicates a missing (or soft-deleted) church record.
	ErrChurchNotFound = errors.New("church not found")
	// ErrChurchConflict indicates a duplicated slug.
	ErrChurchConflict = errors.New("church conflict")
)

// ChurchStore provides access to the churches table.
type ChurchStore struct {
	pool *pgxpool.Pool
}

// NewChurchStore creates a store; assumes migrations already created the table.
func NewChurchStore(pool *pgxpool.Pool) (*ChurchStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ChurchStore{pool: pool}, nil
}

const churchColumns = "church_id, slug, name, status, is_soft_deleted, created_at, updated_at"

// CreateChurchParams captures the fields required to register a church.
type CreateChurchParams struct {
	ChurchID uuid.UUID
	Slug     string
	Name     string
}

// Create inserts a new church with active status.
func (s *ChurchStore) Create(ctx context.Context, params CreateChurchParams) (Church, error) {
	if params.ChurchID == uuid.Nil {
		return Church{}, errors.New("church id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (church_id, slug, name)
        VALUES ($1, $2, $3)
        RETURNING %s
    `, ChurchesTable, churchColumns),
		params.ChurchID,
		strings.ToLower(strings.TrimSpace(params.Slug)),
		strings.TrimSpace(params.Name),
	)

	church, err := scanChurch(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Church{}, ErrChurchConflict
		}
		return Church{}, err
	}

	return church, nil
}

// GetLive fetches a church by id, excluding soft-deleted rows. This is the
// lookup the role resolution engine uses before granting implicit admin.
func (s *ChurchStore) GetLive(ctx context.Context, id uuid.UUID) (Church, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE church_id = $1 AND is_soft_deleted = FALSE
    `, churchColumns, ChurchesTable), id)

	church, err := scanChurch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Church{}, ErrChurchNotFound
		}
		return Church{}, err
	}

	return church, nil
}

// GetBySlug returns a live church by slug.
func (s *ChurchStore) GetBySlug(ctx context.Context, slug string) (Church, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE slug = $1 AND is_soft_deleted = FALSE
    `, churchColumns, ChurchesTable), strings.ToLower(strings.TrimSpace(slug)))

	church, err := scanChurch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Church{}, ErrChurchNotFound
		}
		return Church{}, err
	}

	return church, nil
}

// SetStatus updates the status of a live church.
func (s *ChurchStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status != ChurchStatusActive && status != ChurchStatusSuspended {
		return fmt.Errorf("unknown church status %q", status)
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET status = $1, updated_at = NOW()
        WHERE church_id = $2 AND is_soft_deleted = FALSE
    `, ChurchesTable), status, id)
	if err != nil {
		return fmt.Errorf("set church status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChurchNotFound
	}
	return nil
}

// SoftDelete marks a church deleted. Sessions pointing at it lose implicit
// admin on the next resolution.
func (s *ChurchStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET is_soft_deleted = TRUE, updated_at = NOW()
        WHERE church_id = $1 AND is_soft_deleted = FALSE
    `, ChurchesTable), id)
	if err != nil {
		return fmt.Errorf("soft delete church: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChurchNotFound
	}
	return nil
}

func scanChurch(row pgx.Row) (Church, error) {
	var church Church

	if err := row.Scan(&church.ChurchID, &church.Slug, &church.Name, &church.Status, &church.IsSoftDeleted, &church.CreatedAt, &church.UpdatedAt); err != nil {
		return Church{}, err
	}

	return church, nil
}
