package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

func TestRequireAuthNeedsBoundChurch(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	userID := stores.addUser(platformRole(persistence.PlatformRoleAdmin))
	token := stores.addSession(userID, nil)

	resolver := newTestResolver(stores)

	_, _, err := resolver.RequireAuth(context.Background(), token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRequireContentEditorOrdering(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role    persistence.MembershipRole
		wantErr error
	}{
		{persistence.RoleViewer, ErrForbidden},
		{persistence.RoleEditor, nil},
		{persistence.RoleAdmin, nil},
	}

	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			t.Parallel()

			stores := newFakeStores()
			userID := stores.addUser(nil)
			churchID := stores.addChurch(persistence.ChurchStatusActive)
			stores.addMembership(userID, churchID, tc.role)
			token := stores.addSession(userID, &churchID)

			resolver := newTestResolver(stores)

			_, _, err := resolver.RequireContentEditor(context.Background(), token)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequireChurchAdminRejectsEditor(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	userID := stores.addUser(nil)
	churchID := stores.addChurch(persistence.ChurchStatusActive)
	stores.addMembership(userID, churchID, persistence.RoleEditor)
	token := stores.addSession(userID, &churchID)

	resolver := newTestResolver(stores)

	_, _, err := resolver.RequireChurchAdmin(context.Background(), token)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequireChurchAdminAcceptsImplicitAdmin(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	userID := stores.addUser(platformRole(persistence.PlatformRoleAdmin))
	churchID := stores.addChurch(persistence.ChurchStatusActive)
	token := stores.addSession(userID, &churchID)

	resolver := newTestResolver(stores)

	identity, gotChurch, err := resolver.RequireChurchAdmin(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, churchID, gotChurch)
	require.True(t, identity.ImplicitAdmin)
}

func TestRequirePlatformUserWithoutChurch(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	userID := stores.addUser(platformRole(persistence.PlatformRoleStaff))
	token := stores.addSession(userID, nil)

	resolver := newTestResolver(stores)

	identity, err := resolver.RequirePlatformUser(context.Background(), token)
	require.NoError(t, err)
	require.False(t, identity.Bound())
}

func TestRequirePlatformUserRejectsChurchUser(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	userID := stores.addUser(nil)
	churchID := stores.addChurch(persistence.ChurchStatusActive)
	stores.addMembership(userID, churchID, persistence.RoleAdmin)
	token := stores.addSession(userID, &churchID)

	resolver := newTestResolver(stores)

	_, err := resolver.RequirePlatformUser(context.Background(), token)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequirePlatformAdmin(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	adminID := stores.addUser(platformRole(persistence.PlatformRoleAdmin))
	staffID := stores.addUser(platformRole(persistence.PlatformRoleStaff))
	adminToken := stores.addSession(adminID, nil)
	staffToken := stores.addSession(staffID, nil)

	resolver := newTestResolver(stores)

	_, err := resolver.RequirePlatformAdmin(context.Background(), adminToken)
	require.NoError(t, err)

	_, err = resolver.RequirePlatformAdmin(context.Background(), staffToken)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequireCrmUserExcludesPlatformStaff(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		role    *persistence.PlatformRole
		wantErr error
	}{
		{"platform admin", platformRole(persistence.PlatformRoleAdmin), nil},
		{"sales rep", platformRole(persistence.PlatformRoleSales), nil},
		{"platform staff", platformRole(persistence.PlatformRoleStaff), ErrForbidden},
		{"church user", nil, ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stores := newFakeStores()
			userID := stores.addUser(tc.role)
			token := stores.addSession(userID, nil)

			resolver := newTestResolver(stores)

			_, err := resolver.RequireCrmUser(context.Background(), token)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckCrmAccessNilIdentity(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, CheckCrmAccess(nil), ErrUnauthenticated)
}
