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

const LeadsTable = "leads"

// Lead is a CRM prospect. NextFollowUpAt is derived from the lead's open
// tasks and is only ever written by the task mutation transactions.
type Lead struct {
	LeadID         uuid.UUID  `db:"lead_id"`
	OwnerUserID    uuid.UUID  `db:"owner_user_id"`
	FullName       string     `db:"full_name"`
	Email          string     `db:"email"`
	Phone          string     `db:"phone"`
	Status         string     `db:"status"`
	NextFollowUpAt *time.Time `db:"next_follow_up_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// ErrLeadNotFound indicates a missing lead, or one outside the caller's
// ownership scope; the two are indistinguishable on purpose.
var ErrLeadNotFound = errors.New("lead not found")

// LeadStore provides access to the leads table. Every read accepts an
// optional owner filter which is pushed into the SQL itself, so ownership
// scoping cannot be bypassed by guessing ids.
type LeadStore struct {
	pool *pgxpool.Pool
}

// NewLeadStore creates a store; assumes migrations already created the table.
func NewLeadStore(pool *pgxpool.Pool) (*LeadStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &LeadStore{pool: pool}, nil
}

const leadColumns = "lead_id, owner_user_id, full_name, email, phone, status, next_follow_up_at, created_at, updated_at"

// CreateLeadParams captures the fields required to insert a lead.
type CreateLeadParams struct {
	LeadID      uuid.UUID
	OwnerUserID uuid.UUID
	FullName    string
	Email       string
	Phone       string
	Status      string
}

// Create inserts a new lead.
func (s *LeadStore) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	if params.LeadID == uuid.Nil {
		return Lead{}, errors.New("lead id is required")
	}
	if params.OwnerUserID == uuid.Nil {
		return Lead{}, errors.New("owner user id is required")
	}

	status := strings.TrimSpace(params.Status)
	if status == "" {
		status = "new"
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (lead_id, owner_user_id, full_name, email, phone, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, LeadsTable, leadColumns),
		params.LeadID, params.OwnerUserID,
		strings.TrimSpace(params.FullName),
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.Phone),
		status,
	)

	return scanLead(row)
}

// Get returns a lead by id. A non-nil owner narrows the lookup to leads
// owned by that user; misses and out-of-scope rows both yield
// ErrLeadNotFound.
func (s *LeadStore) Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE lead_id = $1`, leadColumns, LeadsTable)
	args := []any{id}

	if owner != nil {
		query += " AND owner_user_id = $2"
		args = append(args, *owner)
	}

	lead, err := scanLead(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, err
	}

	return lead, nil
}

// ListLeadsParams captures filters and pagination for List.
type ListLeadsParams struct {
	Owner    *uuid.UUID
	Status   *string
	Page     int
	PageSize int
}

// ListLeadsResult includes the rows and the total count for pagination metadata.
type ListLeadsResult struct {
	Leads      []Lead
	TotalItems int
}

// List returns leads matching the filters ordered by next follow-up, with
// unscheduled leads last.
func (s *LeadStore) List(ctx context.Context, params ListLeadsParams) (ListLeadsResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"1=1"}
	var args []any

	if params.Owner != nil {
		args = append(args, *params.Owner)
		whereParts = append(whereParts, fmt.Sprintf("owner_user_id = $%d", len(args)))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		args = append(args, strings.TrimSpace(*params.Status))
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", LeadsTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListLeadsResult{}, fmt.Errorf("count leads: %w", err)
	}

	result := ListLeadsResult{Leads: []Lead{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	limit := params.PageSize
	offset := (params.Page - 1) * params.PageSize

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, limit, offset)

	query := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE %s
        ORDER BY next_follow_up_at ASC NULLS LAST, created_at DESC
        LIMIT $%d OFFSET $%d
    `, leadColumns, LeadsTable, whereSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListLeadsResult{}, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, scanErr := scanLead(rows)
		if scanErr != nil {
			return ListLeadsResult{}, fmt.Errorf("scan lead: %w", scanErr)
		}
		leads = append(leads, lead)
	}

	if err = rows.Err(); err != nil {
		return ListLeadsResult{}, fmt.Errorf("iterate leads: %w", err)
	}

	result.Leads = leads
	return result, nil
}

// UpdateLeadParams represents editable lead fields. Ownership changes go
// through Reassign, never here.
type UpdateLeadParams struct {
	FullName *string
	Email    *string
	Phone    *string
	Status   *string
}

// Update applies the provided fields to a lead, narrowed by owner when set.
func (s *LeadStore) Update(ctx context.Context, id uuid.UUID, owner *uuid.UUID, params UpdateLeadParams) (Lead, error) {
	setParts := []string{}
	var args []any

	if params.FullName != nil {
		args = append(args, strings.TrimSpace(*params.FullName))
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if params.Email != nil {
		args = append(args, strings.TrimSpace(*params.Email))
		setParts = append(setParts, fmt.Sprintf("email = $%d", len(args)))
	}
	if params.Phone != nil {
		args = append(args, strings.TrimSpace(*params.Phone))
		setParts = append(setParts, fmt.Sprintf("phone = $%d", len(args)))
	}
	if params.Status != nil {
		args = append(args, strings.TrimSpace(*params.Status))
		setParts = append(setParts, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return Lead{}, errors.New("no fields to update")
	}

	args = append(args, id)
	where := fmt.Sprintf("lead_id = $%d", len(args))
	if owner != nil {
		args = append(args, *owner)
		where += fmt.Sprintf(" AND owner_user_id = $%d", len(args))
	}

	query := fmt.Sprintf(`
        UPDATE %s
        SET %s, updated_at = NOW()
        WHERE %s
        RETURNING %s
    `, LeadsTable, strings.Join(setParts, ", "), where, leadColumns)

	lead, err := scanLead(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, err
	}

	return lead, nil
}

// Reassign changes the lead's owner. Callers must hold platform admin; the
// guard lives in the CRM service.
func (s *LeadStore) Reassign(ctx context.Context, id uuid.UUID, newOwner uuid.UUID) (Lead, error) {
	if newOwner == uuid.Nil {
		return Lead{}, errors.New("new owner is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET owner_user_id = $1, updated_at = NOW()
        WHERE lead_id = $2
        RETURNING %s
    `, LeadsTable, leadColumns), newOwner, id)

	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, err
	}

	return lead, nil
}

// Delete removes a lead, narrowed by owner when set. Tasks and DNC rows
// cascade in the schema.
func (s *LeadStore) Delete(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE lead_id = $1`, LeadsTable)
	args := []any{id}
	if owner != nil {
		query += " AND owner_user_id = $2"
		args = append(args, *owner)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead

	if err := row.Scan(&lead.LeadID, &lead.OwnerUserID, &lead.FullName, &lead.Email, &lead.Phone, &lead.Status, &lead.NextFollowUpAt, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return Lead{}, err
	}

	return lead, nil
}
