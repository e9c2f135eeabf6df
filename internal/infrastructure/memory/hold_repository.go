package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/flashmart/reservation/internal/domain/hold"
)

type HoldRepository struct {
	mu    sync.RWMutex
	holds map[string]*domain.Hold
}

func NewHoldRepository() *HoldRepository {
	return &HoldRepository{
		holds: make(map[string]*domain.Hold),
	}
}

func (r *HoldRepository) Insert(ctx context.Context, h *domain.Hold) error {
	_ = ctx
	if h == nil || h.ID == "" {
		return fmt.Errorf("hold repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.holds[h.ID]; exists {
		return fmt.Errorf("hold repository: duplicate id %s", h.ID)
	}
	r.holds[h.ID] = cloneHold(h)
	return nil
}

func (r *HoldRepository) Get(ctx context.Context, id string) (*domain.Hold, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.holds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneHold(h), nil
}

func (r *HoldRepository) Update(ctx context.Context, h *domain.Hold) error {
	_ = ctx
	if h == nil || h.ID == "" {
		return fmt.Errorf("hold repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.holds[h.ID]; !exists {
		return domain.ErrNotFound
	}
	r.holds[h.ID] = cloneHold(h)
	return nil
}

func (r *HoldRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.holds, id)
	return nil
}

func cloneHold(h *domain.Hold) *domain.Hold {
	if h == nil {
		return nil
	}
	clone := *h
	return &clone
}
