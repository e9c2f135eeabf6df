package webhook

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("webhook: notification not found")
	ErrInvalidOutcome = errors.New("webhook: outcome must be success or failure")
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeSuccess, OutcomeFailure:
		return Outcome(s), nil
	default:
		return "", ErrInvalidOutcome
	}
}

type ProcessedState string

const (
	StatePending   ProcessedState = "pending"
	StateProcessed ProcessedState = "processed"
)

// Notification is a payment outcome delivered by the gateway. One logical
// notification is identified by its idempotency key across retried
// deliveries; the first write wins and later arrivals with the same key are
// no-ops regardless of payload. Pending means the referenced order did not
// exist at arrival time, or the outcome has not yet been applied.
type Notification struct {
	IdempotencyKey string
	OrderID        string
	Outcome        Outcome
	Processed      ProcessedState
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

func New(key, orderID string, outcome Outcome, now time.Time) *Notification {
	return &Notification{
		IdempotencyKey: key,
		OrderID:        orderID,
		Outcome:        outcome,
		Processed:      StatePending,
		ReceivedAt:     now,
	}
}

func (n *Notification) IsProcessed() bool {
	return n.Processed == StateProcessed
}

func (n *Notification) MarkProcessed(now time.Time) {
	n.Processed = StateProcessed
	n.ProcessedAt = &now
}

func (n *Notification) Clone() *Notification {
	clone := *n
	if n.ProcessedAt != nil {
		t := *n.ProcessedAt
		clone.ProcessedAt = &t
	}
	return &clone
}
