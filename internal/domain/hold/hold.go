package hold

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("hold: not found")
	ErrAlreadyUsed     = errors.New("hold: already used")
	ErrExpired         = errors.New("hold: expired")
	ErrInvalidQuantity = errors.New("hold: quantity must be greater than zero")
)

// Hold is a time-boxed reservation of stock that has not yet become an
// order. Its reserved quantity is missing from the product's available
// stock for exactly the interval between creation and termination. A hold
// terminates either by consumption (order creation) or by release (expiry);
// no third transition exists. Consumed holds are retained so settlement can
// read product and quantity after the fact; released holds are deleted.
type Hold struct {
	ID        string
	ProductID string
	Quantity  int
	Consumed  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

func New(id, productID string, quantity int, now, expiresAt time.Time) (*Hold, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Hold{
		ID:        id,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

func (h *Hold) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// MarkConsumed validates and applies the consume transition. Check order is
// fixed: existence is the caller's concern, then Consumed, then expiry.
func (h *Hold) MarkConsumed(now time.Time) error {
	if h.Consumed {
		return ErrAlreadyUsed
	}
	if h.ExpiredAt(now) {
		return ErrExpired
	}
	h.Consumed = true
	return nil
}

// UnmarkConsumed reverts a consume whose order never materialized, putting
// the hold back on its normal lifecycle (consumable again, releasable at
// expiry).
func (h *Hold) UnmarkConsumed() {
	h.Consumed = false
}
