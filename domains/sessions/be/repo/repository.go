package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Repository defines the persistence operations required by the sessions service.
type Repository interface {
	CreateSession(ctx context.Context, params persistence.CreateSessionParams) (string, persistence.SessionRecord, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteAllSessionsForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	ListMemberships(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error)
}

type postgresRepository struct {
	sessions    *persistence.SessionStore
	memberships *persistence.MembershipStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(sessions *persistence.SessionStore, memberships *persistence.MembershipStore) Repository {
	if sessions == nil {
		panic("session store is required")
	}
	if memberships == nil {
		panic("membership store is required")
	}
	return &postgresRepository{sessions: sessions, memberships: memberships}
}

func (r *postgresRepository) CreateSession(ctx context.Context, params persistence.CreateSessionParams) (string, persistence.SessionRecord, error) {
	return r.sessions.Create(ctx, params)
}

func (r *postgresRepository) DeleteSession(ctx context.Context, token string) error {
	return r.sessions.Delete(ctx, token)
}

func (r *postgresRepository) DeleteAllSessionsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.sessions.DeleteAllForUser(ctx, userID)
}

func (r *postgresRepository) ListMemberships(ctx context.Context, userID uuid.UUID) ([]persistence.Membership, error) {
	return r.memberships.ListActiveForUser(ctx, userID)
}
