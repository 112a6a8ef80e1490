package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Repository defines the persistence operations required by the accounts service.
type Repository interface {
	CreateUser(ctx context.Context, params persistence.CreateUserParams) (persistence.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (persistence.User, error)
	GetUserByEmail(ctx context.Context, email string) (persistence.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.User, error)

	CreateMembership(ctx context.Context, params persistence.CreateMembershipParams) (persistence.Membership, error)
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error)
	SetMembershipRole(ctx context.Context, userID, churchID uuid.UUID, role persistence.MembershipRole) (persistence.Membership, error)
	DeactivateMembership(ctx context.Context, userID, churchID uuid.UUID) error
}

type postgresRepository struct {
	users       *persistence.UserStore
	memberships *persistence.MembershipStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(users *persistence.UserStore, memberships *persistence.MembershipStore) Repository {
	if users == nil {
		panic("user store is required")
	}
	if memberships == nil {
		panic("membership store is required")
	}
	return &postgresRepository{users: users, memberships: memberships}
}

func (r *postgresRepository) CreateUser(ctx context.Context, params persistence.CreateUserParams) (persistence.User, error) {
	return r.users.CreateUser(ctx, params)
}

func (r *postgresRepository) GetUser(ctx context.Context, id uuid.UUID) (persistence.User, error) {
	return r.users.GetUser(ctx, id)
}

func (r *postgresRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.users.GetUserByEmail(ctx, email)
}

func (r *postgresRepository) UpdateUser(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.User, error) {
	return r.users.UpdateUser(ctx, id, params)
}

func (r *postgresRepository) CreateMembership(ctx context.Context, params persistence.CreateMembershipParams) (persistence.Membership, error) {
	return r.memberships.Create(ctx, params)
}

func (r *postgresRepository) ListMemberships(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error) {
	return r.memberships.ListActiveForUser(ctx, userID)
}

func (r *postgresRepository) SetMembershipRole(ctx context.Context, userID, churchID uuid.UUID, role persistence.MembershipRole) (persistence.Membership, error) {
	return r.memberships.SetRole(ctx, userID, churchID, role)
}

func (r *postgresRepository) DeactivateMembership(ctx context.Context, userID, churchID uuid.UUID) error {
	return r.memberships.Deactivate(ctx, userID, churchID)
}
