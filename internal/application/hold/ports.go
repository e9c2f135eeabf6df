package hold

import "time"

// IDGenerator issues hold identifiers.
type IDGenerator interface {
	NewID() string
}

// ExpiryScheduler arranges a one-shot release check for a hold at (or after)
// its expiry instant. Delivery is at-least-once; Release tolerates duplicate
// and early firing, so implementations retry freely.
type ExpiryScheduler interface {
	Schedule(holdID string, at time.Time)
}
