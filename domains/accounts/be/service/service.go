package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/steeplehq/steeple-saas/domains/accounts/be/repo"
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
	ErrNotFound           = errors.New("account not found")
	ErrConflict           = errors.New("account conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account represents the domain view of a user record; the password hash
// never leaves the service.
type Account struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PlatformRole *persistence.PlatformRole
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterInput represents the payload required to create a new account.
type RegisterInput struct {
	Email        string
	Password     string
	FullName     string
	PlatformRole *persistence.PlatformRole
}

// MembershipInput grants a user a role inside a church.
type MembershipInput struct {
	UserID    uuid.UUID
	ChurchID  uuid.UUID
	Role      persistence.MembershipRole
	IsPrimary bool
}

// Service defines the business operations for the accounts domain.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (Account, error)
	VerifyCredentials(ctx context.Context, email, password string) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	SetActive(ctx context.Context, actor *authz.Identity, id uuid.UUID, active bool) (Account, error)
	SetPlatformRole(ctx context.Context, actor *authz.Identity, id uuid.UUID, role *persistence.PlatformRole) (Account, error)

	GrantMembership(ctx context.Context, actor *authz.Identity, input MembershipInput) (persistence.Membership, error)
	ChangeMembershipRole(ctx context.Context, actor *authz.Identity, userID, churchID uuid.UUID, role persistence.MembershipRole) (persistence.Membership, error)
	RevokeMembership(ctx context.Context, actor *authz.Identity, userID, churchID uuid.UUID) error
}

type service struct {
	repo       repo.Repository
	bcryptCost int
}

// New constructs an accounts Service backed by the provided repository.
// A non-positive cost falls back to the bcrypt default.
func New(r repo.Repository, bcryptCost int) Service {
	if r == nil {
		panic("accounts repository is required")
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &service{repo: r, bcryptCost: bcryptCost}
}

func (s *service) Register(ctx context.Context, input RegisterInput) (Account, error) {
	fieldErrors := FieldErrors{}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		fieldErrors.add("email", "email is required")
	} else if !strings.Contains(email, "@") {
		fieldErrors.add("email", "email must contain '@'")
	}

	if len(input.Password) < 8 {
		fieldErrors.add("password", "password must be at least 8 characters")
	}

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fieldErrors.add("fullName", "fullName is required")
	}

	if input.PlatformRole != nil && !input.PlatformRole.Valid() {
		fieldErrors.add("platformRole", "unknown platform role")
	}

	if len(fieldErrors) > 0 {
		return Account{}, &ValidationError{Fields: fieldErrors}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return Account{}, err
	}

	record, err := s.repo.CreateUser(ctx, persistence.CreateUserParams{
		UserID:       uuid.New(),
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		FullName:     fullName,
		PlatformRole: input.PlatformRole,
	})
	if err != nil {
		return Account{}, mapPersistenceError(err)
	}

	return mapAccount(record), nil
}

// VerifyCredentials checks email and password for login. Inactive accounts
// and unknown emails fail identically to avoid confirming which is which.
func (s *service) VerifyCredentials(ctx context.Context, email, password string) (Account, error) {
	record, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}

	if !record.IsActive {
		return Account{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
		return Account{}, ErrInvalidCredentials
	}

	return mapAccount(record), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	if id == uuid.Nil {
		return Account{}, ErrNotFound
	}

	record, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Account{}, mapPersistenceError(err)
	}

	return mapAccount(record), nil
}

func (s *service) SetActive(ctx context.Context, actor *authz.Identity, id uuid.UUID, active bool) (Account, error) {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return Account{}, err
	}

	record, err := s.repo.UpdateUser(ctx, id, persistence.UpdateUserParams{IsActive: &active})
	if err != nil {
		return Account{}, mapPersistenceError(err)
	}

	return mapAccount(record), nil
}

func (s *service) SetPlatformRole(ctx context.Context, actor *authz.Identity, id uuid.UUID, role *persistence.PlatformRole) (Account, error) {
	if err := authz.CheckPlatformAdmin(actor); err != nil {
		return Account{}, err
	}
	if role != nil && !role.Valid() {
		return Account{}, newValidationError(map[string]string{"platformRole": "unknown platform role"})
	}

	params := persistence.UpdateUserParams{}
	if role == nil {
		params.ClearRole = true
	} else {
		params.PlatformRole = role
	}

	record, err := s.repo.UpdateUser(ctx, id, params)
	if err != nil {
		return Account{}, mapPersistenceError(err)
	}

	return mapAccount(record), nil
}

func (s *service) GrantMembership(ctx context.Context, actor *authz.Identity, input MembershipInput) (persistence.Membership, error) {
	if err := authz.CheckChurchAdmin(actor, input.ChurchID); err != nil {
		return persistence.Membership{}, err
	}
	if !input.Role.Valid() {
		return persistence.Membership{}, newValidationError(map[string]string{"role": "unknown membership role"})
	}

	membership, err := s.repo.CreateMembership(ctx, persistence.CreateMembershipParams{
		MembershipID: uuid.New(),
		UserID:       input.UserID,
		ChurchID:     input.ChurchID,
		Role:         input.Role,
		IsPrimary:    input.IsPrimary,
	})
	if err != nil {
		return persistence.Membership{}, mapPersistenceError(err)
	}

	return membership, nil
}

func (s *service) ChangeMembershipRole(ctx context.Context, actor *authz.Identity, userID, churchID uuid.UUID, role persistence.MembershipRole) (persistence.Membership, error) {
	if err := authz.CheckChurchAdmin(actor, churchID); err != nil {
		return persistence.Membership{}, err
	}
	if !role.Valid() {
		return persistence.Membership{}, newValidationError(map[string]string{"role": "unknown membership role"})
	}

	membership, err := s.repo.SetMembershipRole(ctx, userID, churchID, role)
	if err != nil {
		return persistence.Membership{}, mapPersistenceError(err)
	}

	return membership, nil
}

func (s *service) RevokeMembership(ctx context.Context, actor *authz.Identity, userID, churchID uuid.UUID) error {
	if err := authz.CheckChurchAdmin(actor, churchID); err != nil {
		return err
	}

	if err := s.repo.DeactivateMembership(ctx, userID, churchID); err != nil {
		return mapPersistenceError(err)
	}

	return nil
}

func mapAccount(record persistence.User) Account {
	return Account{
		ID:           record.UserID,
		Email:        record.Email,
		FullName:     record.FullName,
		PlatformRole: record.PlatformRole,
		IsActive:     record.IsActive,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserNotFound), errors.Is(err, persistence.ErrMembershipNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrUserConflict), errors.Is(err, persistence.ErrMembershipConflict):
		return ErrConflict
	default:
		return err
	}
}

func newValidationError(fields map[string]string) error {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.add(key, message)
	}
	return &ValidationError{Fields: fe}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
