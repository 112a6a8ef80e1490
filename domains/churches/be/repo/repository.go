package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

// Repository defines the persistence operations required by the churches service.
type Repository interface {
	Create(ctx context.Context, params persistence.CreateChurchParams) (persistence.Church, error)
	GetLive(ctx context.Context, id uuid.UUID) (persistence.Church, error)
	GetBySlug(ctx context.Context, slug string) (persistence.Church, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	churches *persistence.ChurchStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(churches *persistence.ChurchStore) Repository {
	if churches == nil {
		panic("church store is required")
	}
	return &postgresRepository{churches: churches}
}

func (r *postgresRepository) Create(ctx context.Context, params persistence.CreateChurchParams) (persistence.Church, error) {
	return r.churches.Create(ctx, params)
}

func (r *postgresRepository) GetLive(ctx context.Context, id uuid.UUID) (persistence.Church, error) {
	return r.churches.GetLive(ctx, id)
}

func (r *postgresRepository) GetBySlug(ctx context.Context, slug string) (persistence.Church, error) {
	return r.churches.GetBySlug(ctx, slug)
}

func (r *postgresRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.churches.SetStatus(ctx, id, status)
}

func (r *postgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.churches.SoftDelete(ctx, id)
}
