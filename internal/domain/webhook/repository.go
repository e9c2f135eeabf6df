package webhook

import "context"

type Repository interface {
	// InsertIfAbsent stores the notification unless one with the same
	// idempotency key exists. It returns the stored record (the existing one
	// on conflict) and whether this call created it.
	InsertIfAbsent(ctx context.Context, n *Notification) (*Notification, bool, error)
	Get(ctx context.Context, idempotencyKey string) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	ListPendingByOrder(ctx context.Context, orderID string) ([]*Notification, error)
}
