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

	"github.com/steeplehq/steeple-saas/domains/accounts/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	platformmiddleware "github.com/steeplehq/steeple-saas/platform/go/middleware"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

type mockService struct {
	service.Service

	setPlatformRoleFn func(ctx context.Context, actor *authz.Identity, id uuid.UUID, role *persistence.PlatformRole) (service.Account, error)
}

func (m *mockService) SetPlatformRole(ctx context.Context, actor *authz.Identity, id uuid.UUID, role *persistence.PlatformRole) (service.Account, error) {
	if m.setPlatformRoleFn == nil {
		panic("setPlatformRoleFn not configured")
	}
	return m.setPlatformRoleFn(ctx, actor, id, role)
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
			userID: {UserID: userID, Email: "ops@example.com", PlatformRole: role, IsActive: true},
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

// Platform-role administration is tenant-free work; a platform admin whose
// session is not bound to any church must still reach it.
func TestSetPlatformRoleWithUnboundSession(t *testing.T) {
	t.Parallel()

	targetID := uuid.New()
	svc := &mockService{}
	svc.setPlatformRoleFn = func(ctx context.Context, actor *authz.Identity, id uuid.UUID, role *persistence.PlatformRole) (service.Account, error) {
		require.Nil(t, actor.ActiveChurchID)
		require.Equal(t, targetID, id)
		require.NotNil(t, role)
		return service.Account{ID: id, Email: "rep@example.com", PlatformRole: role, IsActive: true}, nil
	}

	role := persistence.PlatformRoleAdmin
	router, token := newTestRouter(t, svc, &role)

	req := httptest.NewRequest(http.MethodPut, "/accounts/"+targetID.String()+"/platform-role", strings.NewReader(`{"role":"sales_rep"}`))
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, targetID, body.UserID)
	require.NotNil(t, body.PlatformRole)
	require.Equal(t, "sales_rep", *body.PlatformRole)
}

func TestAccountsRequireSession(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, &mockService{}, nil)

	req := httptest.NewRequest(http.MethodPut, "/accounts/"+uuid.NewString()+"/platform-role", strings.NewReader(`{"role":"sales_rep"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
