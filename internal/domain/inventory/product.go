package inventory

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("inventory: product not found")
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
)

// ErrInsufficientStock is the target for errors.Is checks; callers needing
// the remaining quantity unwrap to InsufficientStockError.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// InsufficientStockError reports a rejected reservation together with the
// quantity still available, so the caller can surface it to the client.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Product is the authoritative stock record. Available is mutated only
// through conditional decrement and increment, never written raw.
type Product struct {
	ID        string
	Name      string
	Price     int64
	Available int
	UpdatedAt time.Time
}

func NewProduct(id, name string, price int64, available int) (*Product, error) {
	if available < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Product{
		ID:        id,
		Name:      name,
		Price:     price,
		Available: available,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Deduct decrements available stock, rejecting any decrement that would go
// negative. Callers must hold the product's exclusive lock.
func (p *Product) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Available {
		return &InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.Available}
	}
	p.Available -= quantity
	p.touch()
	return nil
}

// Restore increments available stock. Callers must hold the product's
// exclusive lock and call it exactly once per released reservation.
func (p *Product) Restore(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Available += quantity
	p.touch()
	return nil
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
