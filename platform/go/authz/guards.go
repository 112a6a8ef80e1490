package authz

import (
	"context"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Guards are the only place permission checks happen. Every protected
// operation calls exactly one guard before touching data, so the whole
// policy surface is auditable here.

// RequireAuth resolves the token and requires a bound church. Returns the
// identity and the effective church id.
func (r *Resolver) RequireAuth(ctx context.Context, token string) (*Identity, uuid.UUID, error) {
	identity, err := r.ResolveUser(ctx, token)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if !identity.Bound() {
		return nil, uuid.Nil, ErrUnauthenticated
	}
	return identity, *identity.ActiveChurchID, nil
}

// RequireContentEditor requires an effective role of editor or above in the
// active church.
func (r *Resolver) RequireContentEditor(ctx context.Context, token string) (*Identity, uuid.UUID, error) {
	identity, churchID, err := r.RequireAuth(ctx, token)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if !identity.Role.AtLeast(persistence.RoleEditor) {
		return nil, uuid.Nil, ErrForbidden
	}
	return identity, churchID, nil
}

// RequireChurchAdmin requires an effective admin role in the active church.
func (r *Resolver) RequireChurchAdmin(ctx context.Context, token string) (*Identity, uuid.UUID, error) {
	identity, churchID, err := r.RequireAuth(ctx, token)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if identity.Role != persistence.RoleAdmin {
		return nil, uuid.Nil, ErrForbidden
	}
	return identity, churchID, nil
}

// RequirePlatformUser requires any global staff role. No church context is
// needed; the identity may be unbound.
func (r *Resolver) RequirePlatformUser(ctx context.Context, token string) (*Identity, error) {
	identity, err := r.ResolveUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if !identity.IsPlatformIdentity() {
		return nil, ErrForbidden
	}
	return identity, nil
}

// RequirePlatformAdmin requires the platform_admin global role.
func (r *Resolver) RequirePlatformAdmin(ctx context.Context, token string) (*Identity, error) {
	identity, err := r.ResolveUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if !identity.HasPlatformRole(persistence.PlatformRoleAdmin) {
		return nil, ErrForbidden
	}
	return identity, nil
}

// RequireCrmUser requires platform_admin or sales_rep. Platform staff hold a
// global role but are excluded from the CRM.
func (r *Resolver) RequireCrmUser(ctx context.Context, token string) (*Identity, error) {
	identity, err := r.ResolveUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := CheckCrmAccess(identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// CheckCrmAccess validates CRM eligibility on an already resolved identity.
// CRM entry points accept identities, never raw tokens, so they re-check
// here rather than re-resolving.
func CheckCrmAccess(identity *Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if identity.HasPlatformRole(persistence.PlatformRoleAdmin) || identity.HasPlatformRole(persistence.PlatformRoleSales) {
		return nil
	}
	return ErrForbidden
}

// CheckPlatformAdmin validates the platform_admin role on an already
// resolved identity.
func CheckPlatformAdmin(identity *Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if !identity.HasPlatformRole(persistence.PlatformRoleAdmin) {
		return ErrForbidden
	}
	return nil
}

// CheckChurchAdmin validates admin privileges over a specific church on an
// already resolved identity: either the platform_admin global role, or an
// effective admin role with the identity bound to that church.
func CheckChurchAdmin(identity *Identity, churchID uuid.UUID) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if identity.HasPlatformRole(persistence.PlatformRoleAdmin) {
		return nil
	}
	if identity.Bound() && *identity.ActiveChurchID == churchID && identity.Role == persistence.RoleAdmin {
		return nil
	}
	return ErrForbidden
}
