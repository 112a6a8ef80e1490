package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	accounts "github.com/steeplehq/steeple-saas/domains/accounts/be/service"
	"github.com/steeplehq/steeple-saas/domains/sessions/be/repo"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Domain sentinel errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)

// LoginInput carries the credentials and client metadata for a new session.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// Session is the domain view of a session handed back on login. Token is the
// raw opaque value for the client cookie; it is not recoverable afterwards.
type Session struct {
	Token          string
	UserID         uuid.UUID
	ActiveChurchID *uuid.UUID
	ExpiresAt      time.Time
}

// Service defines the business operations for the sessions domain.
type Service interface {
	Login(ctx context.Context, input LoginInput) (Session, error)
	Logout(ctx context.Context, token string) error
	LogoutEverywhere(ctx context.Context, token string) (int64, error)
	SwitchChurch(ctx context.Context, token string, churchID uuid.UUID) (*authz.Identity, error)
	Me(ctx context.Context, token string) (*authz.Identity, error)
}

type service struct {
	accounts accounts.Service
	repo     repo.Repository
	resolver *authz.Resolver
}

// New constructs a sessions Service.
func New(accountsService accounts.Service, r repo.Repository, resolver *authz.Resolver) Service {
	if accountsService == nil {
		panic("accounts service is required")
	}
	if r == nil {
		panic("sessions repository is required")
	}
	if resolver == nil {
		panic("authz resolver is required")
	}
	return &service{accounts: accountsService, repo: r, resolver: resolver}
}

// Login verifies credentials and mints a session. The initial active church
// is the primary membership when one exists, otherwise the first active
// membership; platform identities without memberships start unbound and pick
// a church explicitly afterwards.
func (s *service) Login(ctx context.Context, input LoginInput) (Session, error) {
	account, err := s.accounts.VerifyCredentials(ctx, input.Email, input.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	memberships, err := s.repo.ListMemberships(ctx, account.ID)
	if err != nil {
		return Session{}, err
	}

	token, record, err := s.repo.CreateSession(ctx, persistence.CreateSessionParams{
		UserID:         account.ID,
		ActiveChurchID: initialChurch(memberships),
		UserAgent:      input.UserAgent,
		IPAddress:      input.IPAddress,
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:          token,
		UserID:         record.UserID,
		ActiveChurchID: record.ActiveChurchID,
		ExpiresAt:      record.ExpiresAt,
	}, nil
}

// Logout revokes a single session. Revoking an already absent token is not
// an error; the end state is the same.
func (s *service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.repo.DeleteSession(ctx, token); err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	return nil
}

// LogoutEverywhere revokes every session of the user behind the token,
// including the calling one. Returns the number of revoked sessions. An
// unbound session is enough; the caller's church context is irrelevant here.
func (s *service) LogoutEverywhere(ctx context.Context, token string) (int64, error) {
	identity, err := s.resolver.ResolveUser(ctx, token)
	if err != nil {
		return 0, err
	}

	return s.repo.DeleteAllSessionsForUser(ctx, identity.UserID)
}

// SwitchChurch repoints the session at another church after re-validating
// eligibility, then returns the identity as resolved against the new church.
func (s *service) SwitchChurch(ctx context.Context, token string, churchID uuid.UUID) (*authz.Identity, error) {
	if err := s.resolver.SwitchActiveChurch(ctx, token, churchID); err != nil {
		return nil, err
	}

	return s.resolver.ResolveUser(ctx, token)
}

// Me resolves the current identity, effective role included. Unbound
// identities resolve too; the membership list is what drives the church
// switcher, so Me must answer before a church is picked.
func (s *service) Me(ctx context.Context, token string) (*authz.Identity, error) {
	return s.resolver.ResolveUser(ctx, token)
}

func initialChurch(memberships []persistence.Membership) *uuid.UUID {
	for i := range memberships {
		if memberships[i].IsPrimary {
			return &memberships[i].ChurchID
		}
	}
	if len(memberships) > 0 {
		return &memberships[0].ChurchID
	}
	return nil
}
