package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("order: not found")
	ErrConflict = errors.New("order: conflict")
	// ErrAlreadySettled marks the idempotent no-op path: the order has left
	// pre_payment and later settlement attempts must not touch it.
	ErrAlreadySettled = errors.New("order: already settled")
)

type Status string

const (
	StatusPrePayment Status = "pre_payment"
	StatusPaid       Status = "paid"
	StatusCancelled  Status = "cancelled"
)

// Order is created from exactly one consumed hold. Status leaves
// pre_payment at most once, to paid or cancelled.
type Order struct {
	ID        string
	HoldID    string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, holdID string, now time.Time) *Order {
	return &Order{
		ID:        id,
		HoldID:    holdID,
		Status:    StatusPrePayment,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (o *Order) Settled() bool {
	return o.Status != StatusPrePayment
}

func (o *Order) MarkPaid(now time.Time) error {
	if o.Settled() {
		return ErrAlreadySettled
	}
	o.Status = StatusPaid
	o.UpdatedAt = now
	return nil
}

func (o *Order) MarkCancelled(now time.Time) error {
	if o.Settled() {
		return ErrAlreadySettled
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

func (o *Order) Clone() *Order {
	clone := *o
	return &clone
}
