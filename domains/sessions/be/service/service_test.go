package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	accounts "github.com/steeplehq/steeple-saas/domains/accounts/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

type fakeAccounts struct {
	accounts.Service

	verifyFn func(ctx context.Context, email, password string) (accounts.Account, error)
}

func (f *fakeAccounts) VerifyCredentials(ctx context.Context, email, password string) (accounts.Account, error) {
	return f.verifyFn(ctx, email, password)
}

// fakeBackend implements both the sessions repository and the resolver's
// reader interfaces over in-memory maps.
type fakeBackend struct {
	users       map[uuid.UUID]persistence.User
	churches    map[uuid.UUID]persistence.Church
	memberships map[uuid.UUID][]persistence.Membership
	sessions    map[string]persistence.SessionRecord
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:       map[uuid.UUID]persistence.User{},
		churches:    map[uuid.UUID]persistence.Church{},
		memberships: map[uuid.UUID][]persistence.Membership{},
		sessions:    map[string]persistence.SessionRecord{},
	}
}

func (f *fakeBackend) CreateSession(ctx context.Context, params persistence.CreateSessionParams) (string, persistence.SessionRecord, error) {
	token, digest, err := persistence.NewSessionToken()
	if err != nil {
		return "", persistence.SessionRecord{}, err
	}
	record := persistence.SessionRecord{
		TokenDigest:    digest,
		UserID:         params.UserID,
		ActiveChurchID: params.ActiveChurchID,
		ExpiresAt:      time.Now().Add(time.Hour),
		CreatedAt:      time.Now(),
	}
	f.sessions[digest] = record
	return token, record, nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, token string) error {
	digest := persistence.DigestSessionToken(token)
	if _, ok := f.sessions[digest]; !ok {
		return persistence.ErrSessionNotFound
	}
	delete(f.sessions, digest)
	return nil
}

func (f *fakeBackend) DeleteAllSessionsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for digest, record := range f.sessions {
		if record.UserID == userID {
			delete(f.sessions, digest)
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) Lookup(ctx context.Context, token string) (persistence.SessionRecord, error) {
	record, ok := f.sessions[persistence.DigestSessionToken(token)]
	if !ok {
		return persistence.SessionRecord{}, persistence.ErrSessionNotFound
	}
	return record, nil
}

func (f *fakeBackend) SetActiveChurch(ctx context.Context, token string, churchID uuid.UUID) error {
	digest := persistence.DigestSessionToken(token)
	record, ok := f.sessions[digest]
	if !ok {
		return persistence.ErrSessionNotFound
	}
	record.ActiveChurchID = &churchID
	f.sessions[digest] = record
	return nil
}

func (f *fakeBackend) GetUser(ctx context.Context, id uuid.UUID) (persistence.User, error) {
	user, ok := f.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeBackend) GetLive(ctx context.Context, id uuid.UUID) (persistence.Church, error) {
	church, ok := f.churches[id]
	if !ok || church.IsSoftDeleted {
		return persistence.Church{}, persistence.ErrChurchNotFound
	}
	return church, nil
}

func (f *fakeBackend) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error) {
	return f.memberships[userID], nil
}

func (f *fakeBackend) ListMemberships(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error) {
	return f.memberships[userID], nil
}

func newTestService(backend *fakeBackend, verify func(ctx context.Context, email, password string) (accounts.Account, error)) Service {
	resolver := authz.NewResolver(backend, backend, backend, backend, zap.NewNop())
	return New(&fakeAccounts{verifyFn: verify}, backend, resolver)
}

func TestLoginPicksPrimaryChurch(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	first := uuid.New()
	primary := uuid.New()

	backend.users[userID] = persistence.User{UserID: userID, IsActive: true}
	backend.churches[first] = persistence.Church{ChurchID: first, Status: persistence.ChurchStatusActive}
	backend.churches[primary] = persistence.Church{ChurchID: primary, Status: persistence.ChurchStatusActive}
	backend.memberships[userID] = []persistence.Membership{
		{UserID: userID, ChurchID: first, Role: persistence.RoleViewer, IsActive: true},
		{UserID: userID, ChurchID: primary, Role: persistence.RoleAdmin, IsActive: true, IsPrimary: true},
	}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID, Email: email}, nil
	})

	session, err := svc.Login(context.Background(), LoginInput{Email: "pastor@example.com", Password: "opensesame"})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.NotNil(t, session.ActiveChurchID)
	require.Equal(t, primary, *session.ActiveChurchID)
}

func TestLoginWithoutMembershipsStartsUnbound(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	backend.users[userID] = persistence.User{UserID: userID, IsActive: true}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID}, nil
	})

	session, err := svc.Login(context.Background(), LoginInput{Email: "sales@example.com", Password: "opensesame"})
	require.NoError(t, err)
	require.Nil(t, session.ActiveChurchID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeBackend(), func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{}, accounts.ErrInvalidCredentials
	})

	_, err := svc.Login(context.Background(), LoginInput{Email: "pastor@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMeAnswersForUnboundPlatformIdentity(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	admin := persistence.PlatformRoleAdmin
	backend.users[userID] = persistence.User{UserID: userID, PlatformRole: &admin, IsActive: true}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID}, nil
	})

	// A platform admin without memberships logs in unbound and still needs Me
	// to drive the church picker.
	session, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "opensesame"})
	require.NoError(t, err)
	require.Nil(t, session.ActiveChurchID)

	identity, err := svc.Me(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, userID, identity.UserID)
	require.Nil(t, identity.ActiveChurchID)
	require.True(t, identity.HasPlatformRole(persistence.PlatformRoleAdmin))

	count, err := svc.LogoutEverywhere(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	backend.users[userID] = persistence.User{UserID: userID, IsActive: true}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID}, nil
	})

	session, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "opensesame"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), session.Token))
	require.NoError(t, svc.Logout(context.Background(), session.Token))
	require.NoError(t, svc.Logout(context.Background(), ""))
}

func TestLogoutEverywhereRevokesAllSessions(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	backend.users[userID] = persistence.User{UserID: userID, IsActive: true}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID}, nil
	})

	first, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "opensesame"})
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "opensesame"})
	require.NoError(t, err)

	count, err := svc.LogoutEverywhere(context.Background(), first.Token)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	_, err = svc.Me(context.Background(), second.Token)
	require.ErrorIs(t, err, authz.ErrUnauthenticated)
}

func TestSwitchChurchResolvesNewRole(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	home := uuid.New()
	other := uuid.New()

	backend.users[userID] = persistence.User{UserID: userID, IsActive: true}
	backend.churches[home] = persistence.Church{ChurchID: home, Status: persistence.ChurchStatusActive}
	backend.churches[other] = persistence.Church{ChurchID: other, Status: persistence.ChurchStatusActive}
	backend.memberships[userID] = []persistence.Membership{
		{UserID: userID, ChurchID: home, Role: persistence.RoleAdmin, IsActive: true, IsPrimary: true},
		{UserID: userID, ChurchID: other, Role: persistence.RoleViewer, IsActive: true},
	}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID}, nil
	})

	session, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "opensesame"})
	require.NoError(t, err)
	require.Equal(t, home, *session.ActiveChurchID)

	identity, err := svc.SwitchChurch(context.Background(), session.Token, other)
	require.NoError(t, err)
	require.Equal(t, other, *identity.ActiveChurchID)
	require.Equal(t, persistence.RoleViewer, identity.Role)
}

func TestSwitchChurchRejectsIneligibleTarget(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	userID := uuid.New()
	home := uuid.New()
	stranger := uuid.New()

	backend.users[userID] = persistence.User{UserID: userID, IsActive: true}
	backend.churches[home] = persistence.Church{ChurchID: home, Status: persistence.ChurchStatusActive}
	backend.churches[stranger] = persistence.Church{ChurchID: stranger, Status: persistence.ChurchStatusActive}
	backend.memberships[userID] = []persistence.Membership{
		{UserID: userID, ChurchID: home, Role: persistence.RoleAdmin, IsActive: true, IsPrimary: true},
	}

	svc := newTestService(backend, func(ctx context.Context, email, password string) (accounts.Account, error) {
		return accounts.Account{ID: userID}, nil
	})

	session, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "opensesame"})
	require.NoError(t, err)

	_, err = svc.SwitchChurch(context.Background(), session.Token, stranger)
	require.ErrorIs(t, err, authz.ErrInvalidTarget)

	// The pointer did not move.
	identity, err := svc.Me(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, home, *identity.ActiveChurchID)
}
