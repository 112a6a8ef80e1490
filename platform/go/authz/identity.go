package authz

import (
	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Identity is the resolved view of a session for exactly one request. The
// effective role is a view over current membership and platform-role state;
// it must never be persisted, cached, or trusted from a prior computation.
type Identity struct {
	UserID       uuid.UUID
	Email        string
	FullName     string
	PlatformRole *persistence.PlatformRole

	// ActiveChurchID is the church this request operates on; nil for a
	// platform identity that has not picked a church yet.
	ActiveChurchID *uuid.UUID

	// Role is the effective role in ActiveChurchID. Zero when no church is
	// resolved.
	Role persistence.MembershipRole

	// ImplicitAdmin is set when Role comes from the platform-identity branch
	// rather than an explicit membership.
	ImplicitAdmin bool

	// Memberships lists every active membership, for church-switcher UIs.
	Memberships []persistence.Membership
}

// IsPlatformIdentity reports whether the user holds any global staff role.
func (id *Identity) IsPlatformIdentity() bool {
	return id.PlatformRole != nil
}

// HasPlatformRole reports whether the user holds the given global role.
func (id *Identity) HasPlatformRole(role persistence.PlatformRole) bool {
	return id.PlatformRole != nil && *id.PlatformRole == role
}

// Bound reports whether the identity resolved to a church.
func (id *Identity) Bound() bool {
	return id.ActiveChurchID != nil
}
