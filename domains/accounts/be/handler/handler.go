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

	"github.com/steeplehq/steeple-saas/domains/accounts/be/service"
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

// Handler exposes account and membership administration over HTTP.
// Registration is public; everything else runs behind the session guards.
type Handler struct {
	svc      service.Service
	resolver *authz.Resolver
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, resolver *authz.Resolver, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("accounts service is required")
	}
	if resolver == nil {
		panic("authz resolver is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, resolver: resolver, logger: logger}
}

// Register mounts the account routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/accounts/register", h.RegisterAccount)
	r.Route("/accounts/{userID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/active", h.SetActive)
		r.Put("/platform-role", h.SetPlatformRole)
		r.Post("/memberships", h.GrantMembership)
		r.Put("/memberships/{churchID}", h.ChangeMembershipRole)
		r.Delete("/memberships/{churchID}", h.RevokeMembership)
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type accountResponse struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PlatformRole *string   `json:"platformRole,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type setPlatformRoleRequest struct {
	Role *string `json:"role"`
}

type membershipRequest struct {
	ChurchID  uuid.UUID `json:"churchId"`
	Role      string    `json:"role"`
	IsPrimary bool      `json:"isPrimary"`
}

type membershipRoleRequest struct {
	Role string `json:"role"`
}

type membershipResponse struct {
	MembershipID uuid.UUID `json:"membershipId"`
	UserID       uuid.UUID `json:"userId"`
	ChurchID     uuid.UUID `json:"churchId"`
	Role         string    `json:"role"`
	IsPrimary    bool      `json:"isPrimary"`
}

func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	account, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
	})
	if err != nil {
		h.handleError(w, r, err, "accountsRegister")
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// Get returns an account. Callers see themselves; anything else needs
// platform admin.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}

	if userID != identity.UserID {
		if err := authz.CheckPlatformAdmin(identity); err != nil {
			h.handleError(w, r, err, "accountsGet")
			return
		}
	}

	account, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err, "accountsGet")
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var body setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	account, err := h.svc.SetActive(r.Context(), identity, userID, body.Active)
	if err != nil {
		h.handleError(w, r, err, "accountsSetActive")
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) SetPlatformRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var body setPlatformRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	var role *persistence.PlatformRole
	if body.Role != nil {
		value := persistence.PlatformRole(*body.Role)
		role = &value
	}

	account, err := h.svc.SetPlatformRole(r.Context(), identity, userID, role)
	if err != nil {
		h.handleError(w, r, err, "accountsSetPlatformRole")
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) GrantMembership(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var body membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChurchID == uuid.Nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "churchId is required", problemTypeValidation, nil)
		return
	}

	membership, err := h.svc.GrantMembership(r.Context(), identity, service.MembershipInput{
		UserID:    userID,
		ChurchID:  body.ChurchID,
		Role:      persistence.MembershipRole(body.Role),
		IsPrimary: body.IsPrimary,
	})
	if err != nil {
		h.handleError(w, r, err, "accountsGrantMembership")
		return
	}

	writeJSON(w, http.StatusCreated, toMembershipResponse(membership))
}

func (h *Handler) ChangeMembershipRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	churchID, ok := h.pathUUID(w, r, "churchID")
	if !ok {
		return
	}

	var body membershipRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation, nil)
		return
	}

	membership, err := h.svc.ChangeMembershipRole(r.Context(), identity, userID, churchID, persistence.MembershipRole(body.Role))
	if err != nil {
		h.handleError(w, r, err, "accountsChangeMembershipRole")
		return
	}

	writeJSON(w, http.StatusOK, toMembershipResponse(membership))
}

func (h *Handler) RevokeMembership(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	churchID, ok := h.pathUUID(w, r, "churchID")
	if !ok {
		return
	}

	if err := h.svc.RevokeMembership(r.Context(), identity, userID, churchID); err != nil {
		h.handleError(w, r, err, "accountsRevokeMembership")
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

	// No church context required here. Account and membership administration
	// is platform work; an unbound platform admin must still reach it, and
	// the services gate each operation on the resolved identity.
	identity, err := h.resolver.ResolveUser(r.Context(), token)
	if err != nil {
		h.handleError(w, r, err, "accountsResolveIdentity")
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

func toAccountResponse(account service.Account) accountResponse {
	resp := accountResponse{
		UserID:    account.ID,
		Email:     account.Email,
		FullName:  account.FullName,
		IsActive:  account.IsActive,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}

	if account.PlatformRole != nil {
		role := string(*account.PlatformRole)
		resp.PlatformRole = &role
	}

	return resp
}

func toMembershipResponse(membership persistence.Membership) membershipResponse {
	return membershipResponse{
		MembershipID: membership.MembershipID,
		UserID:       membership.UserID,
		ChurchID:     membership.ChurchID,
		Role:         string(membership.Role),
		IsPrimary:    membership.IsPrimary,
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
		logger.Error("accounts operation failed", logFields...)
	case status == http.StatusNotFound:
		logger.Info("accounts resource not found", logFields...)
	default:
		logger.Warn("accounts request rejected", logFields...)
	}

	h.writeProblem(w, status, title, detail, problemType, fields)
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problemTypeValidation, validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found", "account not found", problemTypeNotFound, nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "Conflict", "account conflict", problemTypeConflict, nil
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
