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

const DNCTable = "lead_dnc"

// DNCRecord flags a lead as do-not-contact. At most one record exists per lead.
type DNCRecord struct {
	LeadID    uuid.UUID `db:"lead_id"`
	Reason    string    `db:"reason"`
	CreatedBy uuid.UUID `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

// ErrDNCNotFound indicates the lead carries no do-not-contact flag.
var ErrDNCNotFound = errors.New("dnc record not found")

// DNCStore provides access to do-not-contact flags.
type DNCStore struct {
	pool *pgxpool.Pool
}

// NewDNCStore creates a store; assumes migrations already created the table.
func NewDNCStore(pool *pgxpool.Pool) (*DNCStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &DNCStore{pool: pool}, nil
}

// Get returns the DNC record for a lead, if any.
func (s *DNCStore) Get(ctx context.Context, leadID uuid.UUID) (DNCRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT lead_id, reason, created_by, created_at FROM %s WHERE lead_id = $1
    `, DNCTable), leadID)

	var rec DNCRecord
	if err := row.Scan(&rec.LeadID, &rec.Reason, &rec.CreatedBy, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DNCRecord{}, ErrDNCNotFound
		}
		return DNCRecord{}, err
	}

	return rec, nil
}

// Set flags a lead as do-not-contact; setting an already flagged lead
// updates the reason.
func (s *DNCStore) Set(ctx context.Context, leadID, createdBy uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (lead_id, reason, created_by)
        VALUES ($1, $2, $3)
        ON CONFLICT (lead_id) DO UPDATE SET reason = EXCLUDED.reason
    `, DNCTable), leadID, strings.TrimSpace(reason), createdBy)
	if err != nil {
		return fmt.Errorf("set dnc: %w", err)
	}
	return nil
}

// Clear removes a lead's do-not-contact flag.
func (s *DNCStore) Clear(ctx context.Context, leadID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE lead_id = $1`, DNCTable), leadID)
	if err != nil {
		return fmt.Errorf("clear dnc: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDNCNotFound
	}
	return nil
}
