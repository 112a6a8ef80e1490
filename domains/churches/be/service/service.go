package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/domains/churches/be/repo"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound = errors.New("church not found")
	ErrConflict = errors.New("church conflict")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// CreateInput captures a new church registration.
type CreateInput struct {
	Slug string
	Name string
}

// Service defines the business operations for the churches domain. Write
// operations are platform-admin only; reads are open to any authenticated
// caller since church names and slugs are public.
type Service interface {
	Create(ctx context.Context, actor *authz.Identity, input CreateInput) (persistence.Church, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.Church, error)
	GetBySlug(ctx context.Context, slug string) (persistence.Church, error)
	Suspend(ctx context.Context, actor *authz.Identity, id uuid.UUID) error
	Reinstate(ctx context.Context, actor *authz.Identity, id uuid.UUID) error
	SoftDelete(ctx context.Context, actor *authz.Identity, id uuid.UUID) error
}

type service struct {
	repo repo.Repository
}

// New constructs a churches Service backed by the provided repository.
func New(r repo.Repository) Service {
	if r == nil {
		panic("churches repository is required")
	}
	return &service{repo: r}
}

func (s *service) Create(ctx context.Context, actor *authz.Identity, input CreateInput) (persistence.Church, error) {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return persistence.Church{}, err
	}

	fieldErrors := FieldErrors{}

	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		fieldErrors.add("slug", "slug must be lowercase letters, digits and hyphens")
	}
	if strings.TrimSpace(input.Name) == "" {
		fieldErrors.add("name", "name is required")
	}
	if len(fieldErrors) > 0 {
		return persistence.Church{}, &ValidationError{Fields: fieldErrors}
	}

	church, err := s.repo.Create(ctx, persistence.CreateChurchParams{
		ChurchID: uuid.New(),
		Slug:     slug,
		Name:     strings.TrimSpace(input.Name),
	})
	if err != nil {
		return persistence.Church{}, mapPersistenceError(err)
	}

	return church, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (persistence.Church, error) {
	church, err := s.repo.GetLive(ctx, id)
	if err != nil {
		return persistence.Church{}, mapPersistenceError(err)
	}
	return church, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (persistence.Church, error) {
	church, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return persistence.Church{}, mapPersistenceError(err)
	}
	return church, nil
}

// Suspend parks a church. Implicit admin access for platform identities cuts
// off on the next request; explicit memberships keep working so the church's
// own admins can still get in.
func (s *service) Suspend(ctx context.Context, actor *authz.Identity, id uuid.UUID) error {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return err
	}
	return mapPersistenceError(s.repo.SetStatus(ctx, id, persistence.ChurchStatusSuspended))
}

func (s *service) Reinstate(ctx context.Context, actor *authz.Identity, id uuid.UUID) error {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return err
	}
	return mapPersistenceError(s.repo.SetStatus(ctx, id, persistence.ChurchStatusActive))
}

func (s *service) SoftDelete(ctx context.Context, actor *authz.Identity, id uuid.UUID) error {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return err
	}
	return mapPersistenceError(s.repo.SoftDelete(ctx, id))
}

func mapPersistenceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrChurchNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrChurchConflict):
		return ErrConflict
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
