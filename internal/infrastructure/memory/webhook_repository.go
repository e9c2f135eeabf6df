package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/flashmart/reservation/internal/domain/webhook"
)

type WebhookRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
}

func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{
		notifications: make(map[string]*domain.Notification),
	}
}

// InsertIfAbsent is the first-write-wins insert backing notification
// idempotency: the map write and the existence check happen under one lock,
// so concurrent deliveries of the same key store exactly one record.
func (r *WebhookRepository) InsertIfAbsent(ctx context.Context, n *domain.Notification) (*domain.Notification, bool, error) {
	_ = ctx
	if n == nil || n.IdempotencyKey == "" {
		return nil, false, fmt.Errorf("webhook repository: idempotency key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.notifications[n.IdempotencyKey]; ok {
		return existing.Clone(), false, nil
	}
	r.notifications[n.IdempotencyKey] = n.Clone()
	return n.Clone(), true, nil
}

func (r *WebhookRepository) Get(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[idempotencyKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *WebhookRepository) Update(ctx context.Context, n *domain.Notification) error {
	_ = ctx
	if n == nil || n.IdempotencyKey == "" {
		return fmt.Errorf("webhook repository: idempotency key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notifications[n.IdempotencyKey]; !exists {
		return domain.ErrNotFound
	}
	r.notifications[n.IdempotencyKey] = n.Clone()
	return nil
}

func (r *WebhookRepository) ListPendingByOrder(ctx context.Context, orderID string) ([]*domain.Notification, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*domain.Notification
	for _, n := range r.notifications {
		if n.OrderID == orderID && !n.IsProcessed() {
			pending = append(pending, n.Clone())
		}
	}
	return pending, nil
}
