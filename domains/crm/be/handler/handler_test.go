package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/steeplehq/steeple-saas/domains/crm/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	platformmiddleware "github.com/steeplehq/steeple-saas/platform/go/middleware"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

type mockService struct {
	service.Service

	createLeadFn func(ctx context.Context, actor *authz.Identity, input service.CreateLeadInput) (service.LeadView, error)
	getLeadFn    func(ctx context.Context, actor *authz.Identity, id uuid.UUID) (service.LeadView, error)
	createTaskFn func(ctx context.Context, actor *authz.Identity, input service.CreateTaskInput) (persistence.Task, error)
}

func (m *mockService) CreateLead(ctx context.Context, actor *authz.Identity, input service.CreateLeadInput) (service.LeadView, error) {
	if m.createLeadFn == nil {
		panic("createLeadFn not configured")
	}
	return m.createLeadFn(ctx, actor, input)
}

func (m *mockService) GetLead(ctx context.Context, actor *authz.Identity, id uuid.UUID) (service.LeadView, error) {
	if m.getLeadFn == nil {
		panic("getLeadFn not configured")
	}
	return m.getLeadFn(ctx, actor, id)
}

func (m *mockService) CreateTask(ctx context.Context, actor *authz.Identity, input service.CreateTaskInput) (persistence.Task, error) {
	if m.createTaskFn == nil {
		panic("createTaskFn not configured")
	}
	return m.createTaskFn(ctx, actor, input)
}

// resolverBackend is a minimal in-memory store set for authz.NewResolver.
type resolverBackend struct {
	users    map[uuid.UUID]persistence.User
	sessions map[string]persistence.SessionRecord
}

func (b *resolverBackend) Lookup(ctx context.Context, token string) (persistence.SessionRecord, error) {
	record, ok := b.sessions[persistence.DigestSessionToken(token)]
	if !ok {
		return persistence.SessionRecord{}, persistence.ErrSessionNotFound
	}
	return record, nil
}

func (b *resolverBackend) SetActiveChurch(ctx context.Context, token string, churchID uuid.UUID) error {
	return nil
}

func (b *resolverBackend) GetUser(ctx context.Context, id uuid.UUID) (persistence.User, error) {
	user, ok := b.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrUserNotFound
	}
	return user, nil
}

func (b *resolverBackend) GetLive(ctx context.Context, id uuid.UUID) (persistence.Church, error) {
	return persistence.Church{}, persistence.ErrChurchNotFound
}

func (b *resolverBackend) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, svc service.Service, role *persistence.PlatformRole) (chi.Router, string) {
	t.Helper()

	token, digest, err := persistence.NewSessionToken()
	require.NoError(t, err)

	userID := uuid.New()
	backend := &resolverBackend{
		users: map[uuid.UUID]persistence.User{
			userID: {UserID: userID, Email: "rep@example.com", PlatformRole: role, IsActive: true},
		},
		sessions: map[string]persistence.SessionRecord{
			digest: {TokenDigest: digest, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)},
		},
	}

	resolver := authz.NewResolver(backend, backend, backend, backend, zap.NewNop())

	r := chi.NewRouter()
	r.Use(platformmiddleware.SessionToken)
	New(svc, resolver, zaptest.NewLogger(t)).Register(r)
	return r, token
}

func salesRole() *persistence.PlatformRole {
	role := persistence.PlatformRoleSales
	return &role
}

func TestCreateLead(t *testing.T) {
	t.Parallel()

	leadID := uuid.New()
	svc := &mockService{}
	svc.createLeadFn = func(ctx context.Context, actor *authz.Identity, input service.CreateLeadInput) (service.LeadView, error) {
		require.Equal(t, "Jordan Miller", input.FullName)
		return service.LeadView{Lead: persistence.Lead{
			LeadID:      leadID,
			OwnerUserID: actor.UserID,
			FullName:    input.FullName,
			Status:      "new",
		}}, nil
	}

	router, token := newTestRouter(t, svc, salesRole())

	req := httptest.NewRequest(http.MethodPost, "/crm/leads", strings.NewReader(`{"fullName":"Jordan Miller","email":"jordan@example.com"}`))
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body leadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, leadID, body.LeadID)
}

func TestCrmRequiresSession(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, &mockService{}, salesRole())

	req := httptest.NewRequest(http.MethodGet, "/crm/leads/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCrmForbiddenForPlatformStaff(t *testing.T) {
	t.Parallel()

	role := persistence.PlatformRoleStaff
	router, token := newTestRouter(t, &mockService{}, &role)

	req := httptest.NewRequest(http.MethodGet, "/crm/leads/"+uuid.NewString(), nil)
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetLeadNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.getLeadFn = func(ctx context.Context, actor *authz.Identity, id uuid.UUID) (service.LeadView, error) {
		return service.LeadView{}, service.ErrNotFound
	}

	router, token := newTestRouter(t, svc, salesRole())

	req := httptest.NewRequest(http.MethodGet, "/crm/leads/"+uuid.NewString(), nil)
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCreateTaskDoNotContactConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.createTaskFn = func(ctx context.Context, actor *authz.Identity, input service.CreateTaskInput) (persistence.Task, error) {
		require.Equal(t, persistence.TaskTypeCall, input.Type)
		return persistence.Task{}, service.ErrDoNotContact
	}

	router, token := newTestRouter(t, svc, salesRole())

	payload := `{"type":"call","dueAt":"2026-09-15T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/crm/leads/"+uuid.NewString()+"/tasks", strings.NewReader(payload))
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}
