package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Repository defines the persistence operations required by the CRM service.
// Lead reads and writes take an optional owner narrowing the SQL itself;
// the service decides per caller whether to pass one.
type Repository interface {
	CreateLead(ctx context.Context, params persistence.CreateLeadParams) (persistence.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (persistence.Lead, error)
	ListLeads(ctx context.Context, params persistence.ListLeadsParams) (persistence.ListLeadsResult, error)
	UpdateLead(ctx context.Context, id uuid.UUID, owner *uuid.UUID, params persistence.UpdateLeadParams) (persistence.Lead, error)
	ReassignLead(ctx context.Context, id uuid.UUID, newOwner uuid.UUID) (persistence.Lead, error)
	DeleteLead(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error

	CreateTask(ctx context.Context, params persistence.CreateTaskParams) (persistence.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (persistence.Task, error)
	ListTasksForLead(ctx context.Context, leadID uuid.UUID) ([]persistence.Task, error)
	CompleteTask(ctx context.Context, id uuid.UUID) (persistence.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error

	GetDNC(ctx context.Context, leadID uuid.UUID) (persistence.DNCRecord, error)
	SetDNC(ctx context.Context, leadID, createdBy uuid.UUID, reason string) error
	ClearDNC(ctx context.Context, leadID uuid.UUID) error
}

type postgresRepository struct {
	leads *persistence.LeadStore
	tasks *persistence.TaskStore
	dnc   *persistence.DNCStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(leads *persistence.LeadStore, tasks *persistence.TaskStore, dnc *persistence.DNCStore) Repository {
	if leads == nil {
		panic("lead store is required")
	}
	if tasks == nil {
		panic("task store is required")
	}
	if dnc == nil {
		panic("dnc store is required")
	}
	return &postgresRepository{leads: leads, tasks: tasks, dnc: dnc}
}

func (r *postgresRepository) CreateLead(ctx context.Context, params persistence.CreateLeadParams) (persistence.Lead, error) {
	return r.leads.Create(ctx, params)
}

func (r *postgresRepository) GetLead(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (persistence.Lead, error) {
	return r.leads.Get(ctx, id, owner)
}

func (r *postgresRepository) ListLeads(ctx context.Context, params persistence.ListLeadsParams) (persistence.ListLeadsResult, error) {
	return r.leads.List(ctx, params)
}

func (r *postgresRepository) UpdateLead(ctx context.Context, id uuid.UUID, owner *uuid.UUID, params persistence.UpdateLeadParams) (persistence.Lead, error) {
	return r.leads.Update(ctx, id, owner, params)
}

func (r *postgresRepository) ReassignLead(ctx context.Context, id uuid.UUID, newOwner uuid.UUID) (persistence.Lead, error) {
	return r.leads.Reassign(ctx, id, newOwner)
}

func (r *postgresRepository) DeleteLead(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error {
	return r.leads.Delete(ctx, id, owner)
}

func (r *postgresRepository) CreateTask(ctx context.Context, params persistence.CreateTaskParams) (persistence.Task, error) {
	return r.tasks.Create(ctx, params)
}

func (r *postgresRepository) GetTask(ctx context.Context, id uuid.UUID) (persistence.Task, error) {
	return r.tasks.Get(ctx, id)
}

func (r *postgresRepository) ListTasksForLead(ctx context.Context, leadID uuid.UUID) ([]persistence.Task, error) {
	return r.tasks.ListForLead(ctx, leadID)
}

func (r *postgresRepository) CompleteTask(ctx context.Context, id uuid.UUID) (persistence.Task, error) {
	return r.tasks.Complete(ctx, id)
}

func (r *postgresRepository) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return r.tasks.Delete(ctx, id)
}

func (r *postgresRepository) GetDNC(ctx context.Context, leadID uuid.UUID) (persistence.DNCRecord, error) {
	return r.dnc.Get(ctx, leadID)
}

func (r *postgresRepository) SetDNC(ctx context.Context, leadID, createdBy uuid.UUID, reason string) error {
	return r.dnc.Set(ctx, leadID, createdBy, reason)
}

func (r *postgresRepository) ClearDNC(ctx context.Context, leadID uuid.UUID) error {
	return r.dnc.Clear(ctx, leadID)
}
