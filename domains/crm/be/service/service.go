package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-saas/domains/crm/be/repo"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors. ErrNotFound also covers leads outside the caller's
// ownership scope; a sales rep probing foreign ids learns nothing about
// whether they exist.
var (
	ErrNotFound     = errors.New("lead not found")
	ErrDoNotContact = errors.New("lead is flagged do-not-contact")
)

// LeadView is a lead together with its do-not-contact flag.
type LeadView struct {
	persistence.Lead
	DoNotContact bool
	DNCReason    string
}

// CreateLeadInput captures a new lead. OwnerUserID is honored only for
// platform admins; sales reps always own the leads they create.
type CreateLeadInput struct {
	FullName    string
	Email       string
	Phone       string
	Status      string
	OwnerUserID *uuid.UUID
}

// UpdateLeadInput represents editable lead fields.
type UpdateLeadInput struct {
	FullName *string
	Email    *string
	Phone    *string
	Status   *string
}

// ListLeadsInput captures filters and pagination for List.
type ListLeadsInput struct {
	Status   *string
	Page     int
	PageSize int
}

// ListLeadsResult carries one page of leads with pagination metadata.
type ListLeadsResult struct {
	Leads      []LeadView
	Page       int
	PageSize   int
	TotalItems int
}

// CreateTaskInput captures a new follow-up task. DncOverride is only honored
// for platform admins and is logged when used.
type CreateTaskInput struct {
	LeadID      uuid.UUID
	Type        persistence.TaskType
	DueAt       time.Time
	DncOverride bool
}

// SetDNCInput flags a lead as do-not-contact.
type SetDNCInput struct {
	LeadID uuid.UUID
	Reason string
}

// Service defines the business operations for the CRM domain. Every entry
// point takes an already resolved identity and re-checks CRM eligibility;
// handlers never pass raw tokens down here.
type Service interface {
	CreateLead(ctx context.Context, actor *authz.Identity, input CreateLeadInput) (LeadView, error)
	GetLead(ctx context.Context, actor *authz.Identity, id uuid.UUID) (LeadView, error)
	ListLeads(ctx context.Context, actor *authz.Identity, input ListLeadsInput) (ListLeadsResult, error)
	UpdateLead(ctx context.Context, actor *authz.Identity, id uuid.UUID, input UpdateLeadInput) (LeadView, error)
	ReassignLead(ctx context.Context, actor *authz.Identity, id uuid.UUID, newOwner uuid.UUID) (LeadView, error)
	DeleteLead(ctx context.Context, actor *authz.Identity, id uuid.UUID) error

	CreateTask(ctx context.Context, actor *authz.Identity, input CreateTaskInput) (persistence.Task, error)
	ListTasks(ctx context.Context, actor *authz.Identity, leadID uuid.UUID) ([]persistence.Task, error)
	CompleteTask(ctx context.Context, actor *authz.Identity, taskID uuid.UUID) (persistence.Task, error)
	DeleteTask(ctx context.Context, actor *authz.Identity, taskID uuid.UUID) error

	SetDoNotContact(ctx context.Context, actor *authz.Identity, input SetDNCInput) error
	ClearDoNotContact(ctx context.Context, actor *authz.Identity, leadID uuid.UUID) error
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs a CRM Service backed by the provided repository.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("crm repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: r, logger: logger}
}

// ownerScope returns the owner filter for the actor: nil for platform
// admins (full visibility), the actor's own id for sales reps. The filter
// lands in the SQL WHERE clause, so scoping happens at query construction
// rather than as an after-the-fact check.
func ownerScope(actor *authz.Identity) *uuid.UUID {
	if actor.HasPlatformRole(persistence.PlatformRoleAdmin) {
		return nil
	}
	owner := actor.UserID
	return &owner
}

func (s *service) CreateLead(ctx context.Context, actor *authz.Identity, input CreateLeadInput) (LeadView, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return LeadView{}, err
	}

	fieldErrors := FieldErrors{}
	if strings.TrimSpace(input.FullName) == "" {
		fieldErrors.add("fullName", "fullName is required")
	}
	if strings.TrimSpace(input.Email) == "" && strings.TrimSpace(input.Phone) == "" {
		fieldErrors.add("email", "either email or phone is required")
	}
	if len(fieldErrors) > 0 {
		return LeadView{}, &ValidationError{Fields: fieldErrors}
	}

	owner := actor.UserID
	if input.OwnerUserID != nil && actor.HasPlatformRole(persistence.PlatformRoleAdmin) {
		owner = *input.OwnerUserID
	}

	lead, err := s.repo.CreateLead(ctx, persistence.CreateLeadParams{
		LeadID:      uuid.New(),
		OwnerUserID: owner,
		FullName:    input.FullName,
		Email:       input.Email,
		Phone:       input.Phone,
		Status:      input.Status,
	})
	if err != nil {
		return LeadView{}, err
	}

	return LeadView{Lead: lead}, nil
}

func (s *service) GetLead(ctx context.Context, actor *authz.Identity, id uuid.UUID) (LeadView, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return LeadView{}, err
	}

	lead, err := s.repo.GetLead(ctx, id, ownerScope(actor))
	if err != nil {
		return LeadView{}, mapPersistenceError(err)
	}

	return s.withDNC(ctx, lead)
}

func (s *service) ListLeads(ctx context.Context, actor *authz.Identity, input ListLeadsInput) (ListLeadsResult, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return ListLeadsResult{}, err
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	result, err := s.repo.ListLeads(ctx, persistence.ListLeadsParams{
		Owner:    ownerScope(actor),
		Status:   input.Status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return ListLeadsResult{}, err
	}

	views := make([]LeadView, 0, len(result.Leads))
	for _, lead := range result.Leads {
		views = append(views, LeadView{Lead: lead})
	}

	return ListLeadsResult{
		Leads:      views,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
	}, nil
}

func (s *service) UpdateLead(ctx context.Context, actor *authz.Identity, id uuid.UUID, input UpdateLeadInput) (LeadView, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return LeadView{}, err
	}

	lead, err := s.repo.UpdateLead(ctx, id, ownerScope(actor), persistence.UpdateLeadParams{
		FullName: input.FullName,
		Email:    input.Email,
		Phone:    input.Phone,
		Status:   input.Status,
	})
	if err != nil {
		return LeadView{}, mapPersistenceError(err)
	}

	return s.withDNC(ctx, lead)
}

// ReassignLead moves a lead to another sales rep. Platform admins only;
// reps cannot hand their leads around themselves.
func (s *service) ReassignLead(ctx context.Context, actor *authz.Identity, id uuid.UUID, newOwner uuid.UUID) (LeadView, error) {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return LeadView{}, err
	}

	lead, err := s.repo.ReassignLead(ctx, id, newOwner)
	if err != nil {
		return LeadView{}, mapPersistenceError(err)
	}

	s.logger.Info("lead reassigned",
		zap.String("lead_id", id.String()),
		zap.String("new_owner_id", newOwner.String()),
		zap.String("actor_id", actor.UserID.String()),
	)

	return s.withDNC(ctx, lead)
}

func (s *service) DeleteLead(ctx context.Context, actor *authz.Identity, id uuid.UUID) error {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return err
	}

	if err := s.repo.DeleteLead(ctx, id, ownerScope(actor)); err != nil {
		return mapPersistenceError(err)
	}

	return nil
}

// CreateTask opens a follow-up task. Contact-attempt types (call, email,
// text) are refused on do-not-contact leads unless a platform admin
// explicitly overrides; overrides are always logged.
func (s *service) CreateTask(ctx context.Context, actor *authz.Identity, input CreateTaskInput) (persistence.Task, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return persistence.Task{}, err
	}

	if !input.Type.Valid() {
		return persistence.Task{}, newValidationError(map[string]string{"type": "unknown task type"})
	}
	if input.DueAt.IsZero() {
		return persistence.Task{}, newValidationError(map[string]string{"dueAt": "dueAt is required"})
	}

	// Scope check first so out-of-scope leads read as missing.
	lead, err := s.repo.GetLead(ctx, input.LeadID, ownerScope(actor))
	if err != nil {
		return persistence.Task{}, mapPersistenceError(err)
	}

	if input.Type.IsContactAttempt() {
		if err := s.enforceDNC(ctx, actor, lead.LeadID, input); err != nil {
			return persistence.Task{}, err
		}
	}

	task, err := s.repo.CreateTask(ctx, persistence.CreateTaskParams{
		TaskID:    uuid.New(),
		LeadID:    lead.LeadID,
		Type:      input.Type,
		DueAt:     input.DueAt,
		CreatedBy: actor.UserID,
	})
	if err != nil {
		return persistence.Task{}, mapPersistenceError(err)
	}

	return task, nil
}

func (s *service) enforceDNC(ctx context.Context, actor *authz.Identity, leadID uuid.UUID, input CreateTaskInput) error {
	record, err := s.repo.GetDNC(ctx, leadID)
	if err != nil {
		if errors.Is(err, persistence.ErrDNCNotFound) {
			return nil
		}
		return err
	}

	if input.DncOverride && actor.HasPlatformRole(persistence.PlatformRoleAdmin) {
		s.logger.Warn("do-not-contact override used",
			zap.String("lead_id", leadID.String()),
			zap.String("actor_id", actor.UserID.String()),
			zap.String("task_type", string(input.Type)),
			zap.String("dnc_reason", record.Reason),
		)
		return nil
	}

	return ErrDoNotContact
}

func (s *service) ListTasks(ctx context.Context, actor *authz.Identity, leadID uuid.UUID) ([]persistence.Task, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetLead(ctx, leadID, ownerScope(actor)); err != nil {
		return nil, mapPersistenceError(err)
	}

	return s.repo.ListTasksForLead(ctx, leadID)
}

func (s *service) CompleteTask(ctx context.Context, actor *authz.Identity, taskID uuid.UUID) (persistence.Task, error) {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return persistence.Task{}, err
	}

	if err := s.checkTaskScope(ctx, actor, taskID); err != nil {
		return persistence.Task{}, err
	}

	task, err := s.repo.CompleteTask(ctx, taskID)
	if err != nil {
		return persistence.Task{}, mapPersistenceError(err)
	}

	return task, nil
}

func (s *service) DeleteTask(ctx context.Context, actor *authz.Identity, taskID uuid.UUID) error {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return err
	}

	if err := s.checkTaskScope(ctx, actor, taskID); err != nil {
		return err
	}

	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return mapPersistenceError(err)
	}

	return nil
}

// checkTaskScope resolves the task's lead through the actor's owner filter.
// A task on a foreign lead reads as missing, same as the lead itself.
func (s *service) checkTaskScope(ctx context.Context, actor *authz.Identity, taskID uuid.UUID) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return mapPersistenceError(err)
	}

	if _, err := s.repo.GetLead(ctx, task.LeadID, ownerScope(actor)); err != nil {
		return mapPersistenceError(err)
	}

	return nil
}

func (s *service) SetDoNotContact(ctx context.Context, actor *authz.Identity, input SetDNCInput) error {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return err
	}
	if strings.TrimSpace(input.Reason) == "" {
		return newValidationError(map[string]string{"reason": "reason is required"})
	}

	lead, err := s.repo.GetLead(ctx, input.LeadID, ownerScope(actor))
	if err != nil {
		return mapPersistenceError(err)
	}

	return s.repo.SetDNC(ctx, lead.LeadID, actor.UserID, strings.TrimSpace(input.Reason))
}

func (s *service) ClearDoNotContact(ctx context.Context, actor *authz.Identity, leadID uuid.UUID) error {
	if err := authz.CheckCrmAccess(actor); err != nil {
		return err
	}

	lead, err := s.repo.GetLead(ctx, leadID, ownerScope(actor))
	if err != nil {
		return mapPersistenceError(err)
	}

	if err := s.repo.ClearDNC(ctx, lead.LeadID); err != nil {
		if errors.Is(err, persistence.ErrDNCNotFound) {
			return nil
		}
		return err
	}

	return nil
}

func (s *service) withDNC(ctx context.Context, lead persistence.Lead) (LeadView, error) {
	record, err := s.repo.GetDNC(ctx, lead.LeadID)
	if err != nil {
		if errors.Is(err, persistence.ErrDNCNotFound) {
			return LeadView{Lead: lead}, nil
		}
		return LeadView{}, err
	}

	return LeadView{Lead: lead, DoNotContact: true, DNCReason: record.Reason}, nil
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrLeadNotFound), errors.Is(err, persistence.ErrTaskNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func newValidationError(fields map[string]string) error {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.add(key, message)
	}
	return &ValidationError{Fields: fe}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
