package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-saas/domains/crm/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	platformlogging "github.com/steeplehq/steeple-saas/platform/go/logging"
	platformmiddleware "github.com/steeplehq/steeple-saas/platform/go/middleware"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
	"github.com/steeplehq/steeple-saas/platform/go/problemdetails"
)

const (
	problemTypeValidation   = "https://steeplehq.com/problems/validation-error"
	problemTypeUnauthorized = "https://steeplehq.com/problems/unauthorized"
	problemTypeForbidden    = "https://steeplehq.com/problems/forbidden"
	problemTypeNotFound     = "https://steeplehq.com/problems/not-found"
	problemTypeDoNotContact = "https://steeplehq.com/problems/do-not-contact"
	problemTypeInternal     = "https://steeplehq.com/problems/internal-error"
)

// Handler exposes the CRM lead and task operations over HTTP. Every request
// resolves the session to an identity through the CRM guard before touching
// the service.
type Handler struct {
	svc      service.Service
	resolver *authz.Resolver
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, resolver *authz.Resolver, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("crm service is required")
	}
	if resolver == nil {
		panic("authz resolver is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, resolver: resolver, logger: logger}
}

// Register mounts the CRM routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/crm/leads", func(r chi.Router) {
		r.Post("/", h.CreateLead)
		r.Get("/", h.ListLeads)
		r.Get("/{leadID}", h.GetLead)
		r.Patch("/{leadID}", h.UpdateLead)
		r.Delete("/{leadID}", h.DeleteLead)
		r.Post("/{leadID}/reassign", h.ReassignLead)
		r.Post("/{leadID}/tasks", h.CreateTask)
		r.Get("/{leadID}/tasks", h.ListTasks)
		r.Put("/{leadID}/dnc", h.SetDNC)
		r.Delete("/{leadID}/dnc", h.ClearDNC)
	})
	r.Route("/crm/tasks", func(r chi.Router) {
		r.Post("/{taskID}/complete", h.CompleteTask)
		r.Delete("/{taskID}", h.DeleteTask)
	})
}

type leadRequest struct {
	FullName    *string    `json:"fullName"`
	Email       *string    `json:"email"`
	Phone       *string    `json:"phone"`
	Status      *string    `json:"status"`
	OwnerUserID *uuid.UUID `json:"ownerUserId"`
}

type leadResponse struct {
	LeadID         uuid.UUID  `json:"leadId"`
	OwnerUserID    uuid.UUID  `json:"ownerUserId"`
	FullName       string     `json:"fullName"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Status         string     `json:"status"`
	NextFollowUpAt *time.Time `json:"nextFollowUpAt,omitempty"`
	DoNotContact   bool       `json:"doNotContact"`
	DNCReason      string     `json:"dncReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type leadListResponse struct {
	Items      []leadResponse `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalItems int            `json:"totalItems"`
}

type reassignRequest struct {
	NewOwnerUserID uuid.UUID `json:"newOwnerUserId"`
}

type taskRequest struct {
	Type        string    `json:"type"`
	DueAt       time.Time `json:"dueAt"`
	DncOverride bool      `json:"dncOverride"`
}

type taskResponse struct {
	TaskID      uuid.UUID  `json:"taskId"`
	LeadID      uuid.UUID  `json:"leadId"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	DueAt       time.Time  `json:"dueAt"`
	CreatedBy   uuid.UUID  `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type dncRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	var body leadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	input := service.CreateLeadInput{OwnerUserID: body.OwnerUserID}
	if body.FullName != nil {
		input.FullName = *body.FullName
	}
	if body.Email != nil {
		input.Email = *body.Email
	}
	if body.Phone != nil {
		input.Phone = *body.Phone
	}
	if body.Status != nil {
		input.Status = *body.Status
	}

	lead, err := h.svc.CreateLead(r.Context(), identity, input)
	if err != nil {
		h.handleError(w, r, err, "crmCreateLead")
		return
	}

	writeJSON(w, http.StatusCreated, toLeadResponse(lead))
}

func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	lead, err := h.svc.GetLead(r.Context(), identity, leadID)
	if err != nil {
		h.handleError(w, r, err, "crmGetLead")
		return
	}

	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	input := service.ListLeadsInput{}
	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		input.Status = &status
	}
	if page := query.Get("page"); page != "" {
		input.Page = atoiOrZero(page)
	}
	if pageSize := query.Get("pageSize"); pageSize != "" {
		input.PageSize = atoiOrZero(pageSize)
	}

	result, err := h.svc.ListLeads(r.Context(), identity, input)
	if err != nil {
		h.handleError(w, r, err, "crmListLeads")
		return
	}

	items := make([]leadResponse, 0, len(result.Leads))
	for _, lead := range result.Leads {
		items = append(items, toLeadResponse(lead))
	}

	writeJSON(w, http.StatusOK, leadListResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
	})
}

func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	var body leadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	lead, err := h.svc.UpdateLead(r.Context(), identity, leadID, service.UpdateLeadInput{
		FullName: body.FullName,
		Email:    body.Email,
		Phone:    body.Phone,
		Status:   body.Status,
	})
	if err != nil {
		h.handleError(w, r, err, "crmUpdateLead")
		return
	}

	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

func (h *Handler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	if err := h.svc.DeleteLead(r.Context(), identity, leadID); err != nil {
		h.handleError(w, r, err, "crmDeleteLead")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReassignLead(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	var body reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewOwnerUserID == uuid.Nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "newOwnerUserId is required", problemTypeValidation, nil)
		return
	}

	lead, err := h.svc.ReassignLead(r.Context(), identity, leadID, body.NewOwnerUserID)
	if err != nil {
		h.handleError(w, r, err, "crmReassignLead")
		return
	}

	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	var body taskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	task, err := h.svc.CreateTask(r.Context(), identity, service.CreateTaskInput{
		LeadID:      leadID,
		Type:        persistence.TaskType(body.Type),
		DueAt:       body.DueAt,
		DncOverride: body.DncOverride,
	})
	if err != nil {
		h.handleError(w, r, err, "crmCreateTask")
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	tasks, err := h.svc.ListTasks(r.Context(), identity, leadID)
	if err != nil {
		h.handleError(w, r, err, "crmListTasks")
		return
	}

	items := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, toTaskResponse(task))
	}

	writeJSON(w, http.StatusOK, map[string][]taskResponse{"items": items})
}

func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	taskID, ok := h.pathUUID(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.svc.CompleteTask(r.Context(), identity, taskID)
	if err != nil {
		h.handleError(w, r, err, "crmCompleteTask")
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	taskID, ok := h.pathUUID(w, r, "taskID")
	if !ok {
		return
	}

	if err := h.svc.DeleteTask(r.Context(), identity, taskID); err != nil {
		h.handleError(w, r, err, "crmDeleteTask")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetDNC(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	var body dncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	if err := h.svc.SetDoNotContact(r.Context(), identity, service.SetDNCInput{LeadID: leadID, Reason: body.Reason}); err != nil {
		h.handleError(w, r, err, "crmSetDNC")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearDNC(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireCrmIdentity(w, r)
	if !ok {
		return
	}

	leadID, ok := h.pathUUID(w, r, "leadID")
	if !ok {
		return
	}

	if err := h.svc.ClearDoNotContact(r.Context(), identity, leadID); err != nil {
		h.handleError(w, r, err, "crmClearDNC")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireCrmIdentity(w http.ResponseWriter, r *http.Request) (*authz.Identity, bool) {
	token, ok := platformmiddleware.SessionTokenFromContext(r.Context())
	if !ok {
		h.writeProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized, nil)
		return nil, false
	}

	identity, err := h.resolver.RequireCrmUser(r.Context(), token)
	if err != nil {
		h.handleError(w, r, err, "crmResolveIdentity")
		return nil, false
	}

	return identity, true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid identifier", name+" must be a UUID", problemTypeValidation, nil)
		return uuid.Nil, false
	}
	return id, true
}

func toLeadResponse(lead service.LeadView) leadResponse {
	return leadResponse{
		LeadID:         lead.LeadID,
		OwnerUserID:    lead.OwnerUserID,
		FullName:       lead.FullName,
		Email:          lead.Email,
		Phone:          lead.Phone,
		Status:         lead.Status,
		NextFollowUpAt: lead.NextFollowUpAt,
		DoNotContact:   lead.DoNotContact,
		DNCReason:      lead.DNCReason,
		CreatedAt:      lead.CreatedAt,
		UpdatedAt:      lead.UpdatedAt,
	}
}

func toTaskResponse(task persistence.Task) taskResponse {
	return taskResponse{
		TaskID:      task.TaskID,
		LeadID:      task.LeadID,
		Type:        string(task.Type),
		Status:      task.Status,
		DueAt:       task.DueAt,
		CreatedBy:   task.CreatedBy,
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, title, detail, problemType, fields := classifyError(err)

	logger := h.loggerFrom(r.Context())
	logFields := []zap.Field{
		zap.String("operation", op),
		zap.Int("status", status),
		zap.Error(err),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("crm operation failed", logFields...)
	case status == http.StatusNotFound:
		logger.Info("crm resource not found", logFields...)
	default:
		logger.Warn("crm request rejected", logFields...)
	}

	h.writeProblem(w, status, title, detail, problemType, fields)
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problemTypeValidation, validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found", "lead not found", problemTypeNotFound, nil
	case errors.Is(err, service.ErrDoNotContact):
		return http.StatusConflict, "Do not contact", "the lead is flagged do-not-contact", problemTypeDoNotContact, nil
	case errors.Is(err, authz.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized, nil
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, "Forbidden", "insufficient privileges", problemTypeForbidden, nil
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problemTypeInternal, nil
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	problem := problemdetails.ProblemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	}

	if len(fieldErrors) > 0 {
		problem.Errors = map[string][]string(fieldErrors)
	}

	problemdetails.Write(w, problem)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
