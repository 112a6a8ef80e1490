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

	"github.com/steeplehq/steeple-saas/domains/sessions/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	platformlogging "github.com/steeplehq/steeple-saas/platform/go/logging"
	platformmiddleware "github.com/steeplehq/steeple-saas/platform/go/middleware"
	"github.com/steeplehq/steeple-saas/platform/go/problemdetails"
)

const (
	problemTypeValidation   = "https://steeplehq.com/problems/validation-error"
	problemTypeUnauthorized = "https://steeplehq.com/problems/unauthorized"
	problemTypeForbidden    = "https://steeplehq.com/problems/forbidden"
	problemTypeInternal     = "https://steeplehq.com/problems/internal-error"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("sessions service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Register mounts the session routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/logout-all", h.LogoutAll)
	r.Get("/auth/me", h.Me)
	r.Post("/auth/session/church", h.SwitchChurch)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID         uuid.UUID  `json:"userId"`
	ActiveChurchID *uuid.UUID `json:"activeChurchId,omitempty"`
	ExpiresAt      time.Time  `json:"expiresAt"`
}

type switchChurchRequest struct {
	ChurchID uuid.UUID `json:"churchId"`
}

type identityResponse struct {
	UserID         uuid.UUID   `json:"userId"`
	Email          string      `json:"email"`
	FullName       string      `json:"fullName"`
	PlatformRole   *string     `json:"platformRole,omitempty"`
	ActiveChurchID *uuid.UUID  `json:"activeChurchId,omitempty"`
	Role           string      `json:"role,omitempty"`
	ImplicitAdmin  bool        `json:"implicitAdmin"`
	Churches       []churchRef `json:"churches"`
}

type churchRef struct {
	ChurchID  uuid.UUID `json:"churchId"`
	Role      string    `json:"role"`
	IsPrimary bool      `json:"isPrimary"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, r, http.StatusBadRequest, "Invalid request body", "request body must be valid JSON", problemTypeValidation)
		return
	}

	session, err := h.svc.Login(r.Context(), service.LoginInput{
		Email:     body.Email,
		Password:  body.Password,
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		h.handleError(w, r, err, "login")
		return
	}

	platformmiddleware.SetSessionCookie(w, session.Token, session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		UserID:         session.UserID,
		ActiveChurchID: session.ActiveChurchID,
		ExpiresAt:      session.ExpiresAt,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := platformmiddleware.SessionTokenFromContext(r.Context())

	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.handleError(w, r, err, "logout")
		return
	}

	platformmiddleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	token, ok := platformmiddleware.SessionTokenFromContext(r.Context())
	if !ok {
		h.writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized)
		return
	}

	count, err := h.svc.LogoutEverywhere(r.Context(), token)
	if err != nil {
		h.handleError(w, r, err, "logout-all")
		return
	}

	platformmiddleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]int64{"revokedSessions": count})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := platformmiddleware.SessionTokenFromContext(r.Context())
	if !ok {
		h.writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized)
		return
	}

	identity, err := h.svc.Me(r.Context(), token)
	if err != nil {
		h.handleError(w, r, err, "me")
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *Handler) SwitchChurch(w http.ResponseWriter, r *http.Request) {
	token, ok := platformmiddleware.SessionTokenFromContext(r.Context())
	if !ok {
		h.writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized)
		return
	}

	var body switchChurchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChurchID == uuid.Nil {
		h.writeProblem(w, r, http.StatusBadRequest, "Invalid request body", "churchId is required", problemTypeValidation)
		return
	}

	identity, err := h.svc.SwitchChurch(r.Context(), token, body.ChurchID)
	if err != nil {
		h.handleError(w, r, err, "switch-church")
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func toIdentityResponse(identity *authz.Identity) identityResponse {
	resp := identityResponse{
		UserID:         identity.UserID,
		Email:          identity.Email,
		FullName:       identity.FullName,
		ActiveChurchID: identity.ActiveChurchID,
		Role:           string(identity.Role),
		ImplicitAdmin:  identity.ImplicitAdmin,
		Churches:       make([]churchRef, 0, len(identity.Memberships)),
	}

	if identity.PlatformRole != nil {
		role := string(*identity.PlatformRole)
		resp.PlatformRole = &role
	}

	for _, m := range identity.Memberships {
		resp.Churches = append(resp.Churches, churchRef{
			ChurchID:  m.ChurchID,
			Role:      string(m.Role),
			IsPrimary: m.IsPrimary,
		})
	}

	return resp
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, title, detail, problemType := classifyError(err)

	logger := h.loggerFrom(r.Context())
	fields := []zap.Field{
		zap.String("operation", op),
		zap.Int("status", status),
		zap.Error(err),
	}

	if status >= http.StatusInternalServerError {
		logger.Error("session operation failed", fields...)
	} else {
		logger.Warn("session request rejected", fields...)
	}

	h.writeProblem(w, r, status, title, detail, problemType)
}

func classifyError(err error) (status int, title, detail, problemType string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized", "invalid email or password", problemTypeUnauthorized
	case errors.Is(err, authz.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized", "authentication required", problemTypeUnauthorized
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, "Forbidden", "insufficient privileges", problemTypeForbidden
	case errors.Is(err, authz.ErrInvalidTarget):
		return http.StatusUnprocessableEntity, "Invalid target church", "the requested church is not available to this account", problemTypeValidation
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problemTypeInternal
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, _ *http.Request, status int, title, detail, problemType string) {
	problemdetails.Write(w, problemdetails.ProblemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clientIP(r *http.Request) string {
	return r.RemoteAddr
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
