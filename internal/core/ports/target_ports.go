package ports

import (
	"context"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

type TargetRepository interface {
	Save(ctx context.Context, target *domain.Target) error
	GetByID(ctx context.Context, id string) (*domain.Target, error)
	Exists(ctx context.Context, id string) (bool, error)
	GetAll(ctx context.Context) ([]*domain.Target, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Target, error)
}

type CreateTargetInput struct {
	Name         string
	Address      string
	Port         int
	Notification *domain.NotificationEndpoint
}

type ListTargetsInput struct {
	Page int
}

type TargetService interface {
	Submit(ctx context.Context, input CreateTargetInput) (*domain.Target, error)
	GetTarget(ctx context.Context, id string) (*domain.Target, error)
	ListTargets(ctx context.Context, input ListTargetsInput) ([]*domain.Target, error)
}
