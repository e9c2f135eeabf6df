package inventory

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/flashmart/reservation/internal/domain/inventory"
	"github.com/flashmart/reservation/internal/pkg/keylock"
	"github.com/flashmart/reservation/internal/pkg/logging"
	"go.uber.org/zap"
)

const component = "inventory_store"

// CacheRefresher receives the authoritative available quantity after every
// successful stock mutation so display caches never serve a stale value for
// longer than their TTL. Implementations must be cheap; a nil refresher is
// allowed.
type CacheRefresher interface {
	RefreshStock(ctx context.Context, productID string, available int)
}

// Store owns the product stock counters. All mutation goes through
// TryReserve and Release, each serialized by the product's exclusive lock;
// this linearization is the sole mechanism preventing overselling.
type Store struct {
	repo    domain.Repository
	locks   *keylock.KeyLock
	refresh CacheRefresher
}

func NewStore(repo domain.Repository, locks *keylock.KeyLock) *Store {
	return &Store{
		repo:  repo,
		locks: locks,
	}
}

// SetCacheRefresher wires the read-side cache. Called once during startup,
// before any traffic.
func (s *Store) SetCacheRefresher(r CacheRefresher) {
	s.refresh = r
}

// Register inserts or replaces a product record. Used by seeding and tests,
// not by the reservation flow.
func (s *Store) Register(ctx context.Context, product *domain.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("inventory: product id is required")
	}
	var avail int
	err := s.locks.WithLock(product.ID, func() error {
		if err := s.repo.Save(ctx, product); err != nil {
			return err
		}
		avail = product.Available
		return nil
	})
	if err != nil {
		return err
	}
	s.refreshStock(ctx, product.ID, avail)
	return nil
}

// Get returns the authoritative product record.
func (s *Store) Get(ctx context.Context, productID string) (*domain.Product, error) {
	return s.repo.Get(ctx, productID)
}

// TryReserve atomically checks and decrements available stock. It returns
// the remaining quantity on success; on insufficient stock it returns an
// InsufficientStockError carrying the untouched available quantity.
func (s *Store) TryReserve(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	logger := logging.WithComponent(ctx, component)

	var remaining int
	err := s.locks.WithLock(productID, func() error {
		product, err := s.repo.Get(ctx, productID)
		if err != nil {
			return err
		}
		if err := product.Deduct(qty); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, product); err != nil {
			return fmt.Errorf("inventory: save after deduct: %w", err)
		}
		remaining = product.Available
		return nil
	})
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			logger.Warn("stock_reserve_rejected",
				zap.String("product_id", productID),
				zap.Int("requested_qty", qty),
				zap.Int("available", insufficient.Available),
			)
		}
		return 0, err
	}

	logger.Info("stock_reserved",
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Int("available", remaining),
	)
	s.refreshStock(ctx, productID, remaining)
	return remaining, nil
}

// Release atomically restores qty to the product's available stock. Callers
// guarantee exactly one Release per terminated reservation.
func (s *Store) Release(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	var remaining int
	err := s.locks.WithLock(productID, func() error {
		product, err := s.repo.Get(ctx, productID)
		if err != nil {
			return err
		}
		if err := product.Restore(qty); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, product); err != nil {
			return fmt.Errorf("inventory: save after restore: %w", err)
		}
		remaining = product.Available
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.WithComponent(ctx, component).Info("stock_released",
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Int("available", remaining),
	)
	s.refreshStock(ctx, productID, remaining)
	return remaining, nil
}

func (s *Store) refreshStock(ctx context.Context, productID string, available int) {
	if s.refresh == nil {
		return
	}
	s.refresh.RefreshStock(ctx, productID, available)
}
