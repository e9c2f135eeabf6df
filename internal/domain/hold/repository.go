package hold

import "context"

type Repository interface {
	Insert(ctx context.Context, h *Hold) error
	Get(ctx context.Context, id string) (*Hold, error)
	Update(ctx context.Context, h *Hold) error
	Delete(ctx context.Context, id string) error
}
