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
	"go.uber.org/zap/zaptest"

	"github.com/steeplehq/steeple-saas/domains/sessions/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	platformmiddleware "github.com/steeplehq/steeple-saas/platform/go/middleware"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

type mockService struct {
	loginFn            func(ctx context.Context, input service.LoginInput) (service.Session, error)
	logoutFn           func(ctx context.Context, token string) error
	logoutEverywhereFn func(ctx context.Context, token string) (int64, error)
	switchChurchFn     func(ctx context.Context, token string, churchID uuid.UUID) (*authz.Identity, error)
	meFn               func(ctx context.Context, token string) (*authz.Identity, error)
}

func (m *mockService) Login(ctx context.Context, input service.LoginInput) (service.Session, error) {
	if m.loginFn == nil {
		panic("loginFn not configured")
	}
	return m.loginFn(ctx, input)
}

func (m *mockService) Logout(ctx context.Context, token string) error {
	if m.logoutFn == nil {
		panic("logoutFn not configured")
	}
	return m.logoutFn(ctx, token)
}

func (m *mockService) LogoutEverywhere(ctx context.Context, token string) (int64, error) {
	if m.logoutEverywhereFn == nil {
		panic("logoutEverywhereFn not configured")
	}
	return m.logoutEverywhereFn(ctx, token)
}

func (m *mockService) SwitchChurch(ctx context.Context, token string, churchID uuid.UUID) (*authz.Identity, error) {
	if m.switchChurchFn == nil {
		panic("switchChurchFn not configured")
	}
	return m.switchChurchFn(ctx, token, churchID)
}

func (m *mockService) Me(ctx context.Context, token string) (*authz.Identity, error) {
	if m.meFn == nil {
		panic("meFn not configured")
	}
	return m.meFn(ctx, token)
}

func newTestRouter(t *testing.T, svc service.Service) chi.Router {
	t.Helper()

	r := chi.NewRouter()
	r.Use(platformmiddleware.SessionToken)
	New(svc, zaptest.NewLogger(t)).Register(r)
	return r
}

func TestLoginSetsSessionCookie(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	churchID := uuid.New()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	svc := &mockService{}
	svc.loginFn = func(ctx context.Context, input service.LoginInput) (service.Session, error) {
		require.Equal(t, "pastor@example.com", input.Email)
		return service.Session{
			Token:          "st_test-token",
			UserID:         userID,
			ActiveChurchID: &churchID,
			ExpiresAt:      expires,
		}, nil
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"pastor@example.com","password":"opensesame"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, platformmiddleware.SessionCookieName, cookies[0].Name)
	require.Equal(t, "st_test-token", cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)

	var body loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, userID, body.UserID)
	require.Equal(t, churchID, *body.ActiveChurchID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.loginFn = func(ctx context.Context, input service.LoginInput) (service.Session, error) {
		return service.Session{}, service.ErrInvalidCredentials
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"x@example.com","password":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Result().Cookies())
}

func TestLogoutClearsCookie(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.logoutFn = func(ctx context.Context, token string) error {
		require.Equal(t, "st_test-token", token)
		return nil
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: "st_test-token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
}

func TestLogoutAllRequiresCookie(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout-all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeReturnsIdentity(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	churchID := uuid.New()

	svc := &mockService{}
	svc.meFn = func(ctx context.Context, token string) (*authz.Identity, error) {
		return &authz.Identity{
			UserID:         userID,
			Email:          "pastor@example.com",
			ActiveChurchID: &churchID,
			Role:           persistence.RoleEditor,
			Memberships: []persistence.Membership{
				{ChurchID: churchID, Role: persistence.RoleEditor, IsActive: true, IsPrimary: true},
			},
		}, nil
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: "st_test-token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body identityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, userID, body.UserID)
	require.Equal(t, "editor", body.Role)
	require.Len(t, body.Churches, 1)
	require.True(t, body.Churches[0].IsPrimary)
}

func TestMeExpiredSession(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.meFn = func(ctx context.Context, token string) (*authz.Identity, error) {
		return nil, authz.ErrUnauthenticated
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: "st_stale"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSwitchChurch(t *testing.T) {
	t.Parallel()

	churchID := uuid.New()

	svc := &mockService{}
	svc.switchChurchFn = func(ctx context.Context, token string, target uuid.UUID) (*authz.Identity, error) {
		require.Equal(t, churchID, target)
		return &authz.Identity{
			UserID:         uuid.New(),
			ActiveChurchID: &target,
			Role:           persistence.RoleViewer,
		}, nil
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/session/church", strings.NewReader(`{"churchId":"`+churchID.String()+`"}`))
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: "st_test-token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body identityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, churchID, *body.ActiveChurchID)
	require.Equal(t, "viewer", body.Role)
}

func TestSwitchChurchInvalidTarget(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.switchChurchFn = func(ctx context.Context, token string, target uuid.UUID) (*authz.Identity, error) {
		return nil, authz.ErrInvalidTarget
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/session/church", strings.NewReader(`{"churchId":"`+uuid.NewString()+`"}`))
	req.AddCookie(&http.Cookie{Name: platformmiddleware.SessionCookieName, Value: "st_test-token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
