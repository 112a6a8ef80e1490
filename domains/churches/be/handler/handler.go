package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-saas/domains/churches/be/service"
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
	problemTypeConflict     = "https://steeplehq.com/problems/conflict"
	problemTypeInternal     = "https://steeplehq.com/problems/internal-error"
)

// Handler exposes church administration over HTTP.
type Handler struct {
	svc      service.Service
	resolver *authz.Resolver
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, resolver *authz.Resolver, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("churches service is required")
	}
	if resolver == nil {
		panic("authz resolver is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, resolver: resolver, logger: logger}
}

// Register mounts the church routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/churches", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{churchID}", h.Get)
		r.Get("/slug/{slug}", h.GetBySlug)
		r.Post("/{churchID}/suspend", h.Suspend)
		r.Post("/{churchID}/reinstate", h.Reinstate)
		r.Delete("/{churchID}", h.SoftDelete)
	})
}

type createRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type churchResponse struct {
	ChurchID  uuid.UUID `json:"churchId"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	church, err := h.svc.Create(r.Context(), identity, service.CreateInput{Slug: body.Slug, Name: body.Name})
	if err != nil {
		h.handleError(w, r, err, "churchesCreate")
		return
	}

	writeJSON(w, http.StatusCreated, toChurchResponse(church))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}

	churchID, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	church, err := h.svc.Get(r.Context(), churchID)
	if err != nil {
		h.handleError(w, r, err, "churchesGet")
		return
	}

	writeJSON(w, http.StatusOK, toChurchResponse(church))
}

func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}

	church, err := h.svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.handleError(w, r, err, "churchesGetBySlug")
		return
	}

	writeJSON(w, http.StatusOK, toChurchResponse(church))
}

func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, "churchesSuspend", h.svc.Suspend)
}

func (h *Handler) Reinstate(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, "churchesReinstate", h.svc.Reinstate)
}

func (h *Handler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, "churchesDelete", h.svc.SoftDelete)
}

func (h *Handler) statusChange(w http.ResponseWriter, r *http.Request, op string, apply func(context.Context, *authz.Identity, uuid.UUID) error) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	churchID, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	if err := apply(r.Context(), identity, churchID); err != nil {
		h.handleError(w, r, err, op)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (*authz.Identity, bool) {
	token, ok := platformmiddleware.SessionTokenFromContext(r.Context())
	if !ok {
		h.writeProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized, nil)
		return nil, false
	}

	// Church administration needs no active church on the session. A fresh
	// deployment has a platform admin with an unbound session creating the
	// first church; the service checks the platform role per operation.
	identity, err := h.resolver.ResolveUser(r.Context(), token)
	if err != nil {
		h.handleError(w, r, err, "churchesResolveIdentity")
		return nil, false
	}

	return identity, true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "churchID"))
	if err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid identifier", "churchID must be a UUID", problemTypeValidation, nil)
		return uuid.Nil, false
	}
	return id, true
}

func toChurchResponse(church persistence.Church) churchResponse {
	return churchResponse{
		ChurchID:  church.ChurchID,
		Slug:      church.Slug,
		Name:      church.Name,
		Status:    church.Status,
		CreatedAt: church.CreatedAt,
		UpdatedAt: church.UpdatedAt,
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
		logger.Error("churches operation failed", logFields...)
	case status == http.StatusNotFound:
		logger.Info("churches resource not found", logFields...)
	default:
		logger.Warn("churches request rejected", logFields...)
	}

	h.writeProblem(w, status, title, detail, problemType, fields)
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problemTypeValidation, validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found", "church not found", problemTypeNotFound, nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "Conflict", "church slug already in use", problemTypeConflict, nil
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

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
