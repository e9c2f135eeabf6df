package order

import "context"

type Repository interface {
	// Insert fails with ErrConflict when the order ID or the hold ID is
	// already taken; a hold maps to at most one order.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
}
