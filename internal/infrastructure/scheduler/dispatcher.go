// Package scheduler is the deferred-task dispatcher behind hold expiry: a
// one-shot timer per hold, firing an idempotent release at or after the
// hold's expiry instant. Delivery is at-least-once; the release callback
// no-ops on consumed, released, or not-yet-expired holds, so duplicate or
// early firing is harmless.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/flashmart/reservation/internal/pkg/logging"
	"go.uber.org/zap"
)

const component = "expiry_dispatcher"

// ReleaseFunc is invoked when a hold's expiry task fires.
type ReleaseFunc func(ctx context.Context, holdID string) error

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 200 * time.Millisecond
)

// Dispatcher runs one-shot deferred release tasks. The delay is computed
// from the wall-clock expiry instant once, at schedule time.
type Dispatcher struct {
	release     ReleaseFunc
	clock       clock.Clock
	logger      *zap.Logger
	maxAttempts int
	baseBackoff time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Dispatcher)

// WithRetry overrides the retry policy for failing release callbacks.
func WithRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if baseBackoff > 0 {
			d.baseBackoff = baseBackoff
		}
	}
}

func New(release ReleaseFunc, clk clock.Clock, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		release:     release,
		clock:       clk,
		logger:      logger.With(zap.String("component", component)),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		timers:      make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Schedule arranges a release check for the hold at the given instant.
// Scheduling the same hold again replaces the previous task.
func (d *Dispatcher) Schedule(holdID string, at time.Time) {
	delay := at.Sub(d.clock.Now())
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.logger.Warn("schedule_after_stop", zap.String("hold_id", holdID))
		return
	}
	if prev, ok := d.timers[holdID]; ok {
		if prev.Stop() {
			// The replaced task never fires; balance its pending wait.
			d.wg.Done()
		}
	}

	d.wg.Add(1)
	d.timers[holdID] = time.AfterFunc(delay, func() {
		defer d.wg.Done()
		d.fire(holdID)
	})

	d.logger.Debug("task_scheduled",
		zap.String("hold_id", holdID),
		zap.Time("at", at),
		zap.Duration("delay", delay),
	)
}

func (d *Dispatcher) fire(holdID string) {
	d.mu.Lock()
	delete(d.timers, holdID)
	d.mu.Unlock()

	ctx := logging.ContextWithLogger(context.Background(), d.logger)

	backoff := d.baseBackoff
	for attempt := 1; ; attempt++ {
		err := d.release(ctx, holdID)
		if err == nil {
			return
		}
		d.logger.Error("release_failed",
			zap.String("hold_id", holdID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt >= d.maxAttempts {
			d.logger.Error("release_abandoned",
				zap.String("hold_id", holdID),
				zap.Int("attempts", attempt),
			)
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

// Stop cancels outstanding timers and waits for in-flight firings. Tasks
// whose timer had not fired are dropped; on restart, pending holds must be
// rescheduled (or they release on the next sweep a durable substrate would
// provide).
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	for id, t := range d.timers {
		if t.Stop() {
			// Timer cancelled before firing; its goroutine never runs.
			d.wg.Done()
		}
		delete(d.timers, id)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher_stopped")
}
