package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// SessionReader is the slice of the session store the resolver needs.
type SessionReader interface {
	Lookup(ctx context.Context, token string) (persistence.SessionRecord, error)
	SetActiveChurch(ctx context.Context, token string, churchID uuid.UUID) error
}

// UserReader loads user records.
type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (persistence.User, error)
}

// MembershipReader loads membership join records.
type MembershipReader interface {
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error)
}

// ChurchReader loads live church records.
type ChurchReader interface {
	GetLive(ctx context.Context, id uuid.UUID) (persistence.Church, error)
}

// Resolver computes the effective role for a session against its active
// church. It recomputes from current membership and platform-role state on
// every call; nothing is cached across requests, so revocations and role
// changes take effect on the very next request.
type Resolver struct {
	sessions    SessionReader
	users       UserReader
	memberships MembershipReader
	churches    ChurchReader
	logger      *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(sessions SessionReader, users UserReader, memberships MembershipReader, churches ChurchReader, logger *zap.Logger) *Resolver {
	if sessions == nil || users == nil || memberships == nil || churches == nil {
		panic("authz: all stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sessions:    sessions,
		users:       users,
		memberships: memberships,
		churches:    churches,
		logger:      logger,
	}
}

// ResolveUser resolves a session token to an identity with its effective
// role. Precedence: an explicit active membership in the session's active
// church wins; otherwise a platform identity receives implicit admin,
// provided the church exists, is not deleted, and is not suspended. A
// session pointing at a church that fails those checks resolves unbound.
func (r *Resolver) ResolveUser(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	session, err := r.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	user, err := r.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}

	memberships, err := r.memberships.ListActiveForUser(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	identity := &Identity{
		UserID:       user.UserID,
		Email:        user.Email,
		FullName:     user.FullName,
		PlatformRole: user.PlatformRole,
		Memberships:  memberships,
	}

	if session.ActiveChurchID == nil {
		return identity, nil
	}

	target := *session.ActiveChurchID

	for _, m := range memberships {
		if m.ChurchID == target {
			identity.ActiveChurchID = &target
			identity.Role = m.Role
			return identity, nil
		}
	}

	if user.IsPlatformIdentity() {
		church, err := r.churches.GetLive(ctx, target)
		if err != nil {
			if errors.Is(err, persistence.ErrChurchNotFound) {
				return identity, nil
			}
			return nil, fmt.Errorf("load church: %w", err)
		}
		if church.Status != persistence.ChurchStatusActive {
			// Suspension blocks implicit admin; explicit memberships are
			// unaffected because they never reach this branch.
			return identity, nil
		}
		identity.ActiveChurchID = &target
		identity.Role = persistence.RoleAdmin
		identity.ImplicitAdmin = true
		return identity, nil
	}

	// Church-only user pointing at a church without an active membership:
	// unbound, a route requiring a church rejects downstream.
	return identity, nil
}

// SwitchActiveChurch re-binds a session to a different church after
// re-validating eligibility. Ineligible attempts return ErrInvalidTarget,
// leave the session untouched, and are logged as an attempted-escalation
// signal rather than an ordinary miss.
func (r *Resolver) SwitchActiveChurch(ctx context.Context, token string, churchID uuid.UUID) error {
	session, err := r.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	user, err := r.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return ErrUnauthenticated
	}

	church, err := r.churches.GetLive(ctx, churchID)
	if err != nil {
		if errors.Is(err, persistence.ErrChurchNotFound) {
			r.logSwitchRejected(user.UserID, churchID, "church missing or deleted")
			return ErrInvalidTarget
		}
		return fmt.Errorf("load church: %w", err)
	}

	memberships, err := r.memberships.ListActiveForUser(ctx, user.UserID)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}

	eligible := false
	for _, m := range memberships {
		if m.ChurchID == churchID {
			eligible = true
			break
		}
	}
	if !eligible && user.IsPlatformIdentity() {
		// Platform identities only reach suspended churches through an
		// explicit membership.
		eligible = church.Status == persistence.ChurchStatusActive
	}

	if !eligible {
		r.logSwitchRejected(user.UserID, churchID, "no membership or platform role")
		return ErrInvalidTarget
	}

	// Last-write-wins under concurrent switches from multiple tabs sharing
	// the session; eligibility is re-checked on every request regardless of
	// how the pointer got set.
	if err := r.sessions.SetActiveChurch(ctx, token, churchID); err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("set active church: %w", err)
	}

	r.logger.Info("active church switched",
		zap.String("user_id", user.UserID.String()),
		zap.String("church_id", churchID.String()),
	)
	return nil
}

func (r *Resolver) logSwitchRejected(userID, churchID uuid.UUID, reason string) {
	r.logger.Warn("church switch rejected",
		zap.String("user_id", userID.String()),
		zap.String("attempted_church_id", churchID.String()),
		zap.String("reason", reason),
	)
}
