package hold

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/flashmart/reservation/internal/domain/hold"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"

	appinv "github.com/flashmart/reservation/internal/application/inventory"
	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/flashmart/reservation/internal/pkg/keylock"
	"github.com/flashmart/reservation/internal/pkg/logging"
	"github.com/flashmart/reservation/internal/pkg/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	component  = "hold_service"
	defaultTTL = 2 * time.Minute
)

// Service is the hold manager: it creates reservations against the
// inventory store, consumes them into orders, and releases them exactly
// once when they expire unconsumed.
type Service struct {
	repo      domain.Repository
	inventory *appinv.Store
	locks     *keylock.KeyLock
	scheduler ExpiryScheduler
	clock     clock.Clock
	idGen     IDGenerator
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	ttl       time.Duration
}

type Option func(*Service)

// WithTTL overrides the default two-minute hold duration.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func NewService(
	repo domain.Repository,
	inv *appinv.Store,
	locks *keylock.KeyLock,
	scheduler ExpiryScheduler,
	clk clock.Clock,
	idGen IDGenerator,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		repo:      repo,
		inventory: inv,
		locks:     locks,
		scheduler: scheduler,
		clock:     clk,
		idGen:     idGen,
		metrics:   m,
		tracer:    otel.Tracer("reservation/hold"),
		ttl:       defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL reports the configured hold duration.
func (s *Service) TTL() time.Duration { return s.ttl }

// SetScheduler wires the expiry dispatcher after construction. The
// dispatcher's release callback is this service's Release, so the two are
// built with the service first and connected here, before any hold exists.
func (s *Service) SetScheduler(sched ExpiryScheduler) {
	s.scheduler = sched
}

// Create reserves qty units of the product and opens a hold that expires
// TTL from now. Stock decrement and hold creation form one unit: a failed
// insert puts the stock back before the error surfaces.
func (s *Service) Create(ctx context.Context, productID string, qty int) (_ *domain.Hold, err error) {
	ctx, span := s.tracer.Start(ctx, "Hold.Create",
		trace.WithAttributes(
			attribute.String("product.id", productID),
			attribute.Int("hold.qty", qty),
		),
	)
	defer func() { endSpan(span, err) }()

	logger := logging.WithComponent(ctx, component)

	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	if _, err := s.inventory.TryReserve(ctx, productID, qty); err != nil {
		if errors.Is(err, dominv.ErrInsufficientStock) {
			s.metrics.IncHoldsRejected()
		}
		return nil, err
	}

	now := s.clock.Now()
	h, err := domain.New(s.idGen.NewID(), productID, qty, now, now.Add(s.ttl))
	if err != nil {
		s.compensateReserve(ctx, productID, qty)
		return nil, err
	}
	if err := s.repo.Insert(ctx, h); err != nil {
		s.compensateReserve(ctx, productID, qty)
		return nil, fmt.Errorf("hold: insert: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.Schedule(h.ID, h.ExpiresAt)
	}
	s.metrics.IncHoldsCreated()

	logger.Info("hold_created",
		zap.String("hold_id", h.ID),
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Time("expires_at", h.ExpiresAt),
	)
	span.SetAttributes(attribute.String("hold.id", h.ID))
	return h, nil
}

// compensateReserve undoes a successful stock decrement whose hold record
// could not be created, keeping the two a single logical unit.
func (s *Service) compensateReserve(ctx context.Context, productID string, qty int) {
	if _, rerr := s.inventory.Release(ctx, productID, qty); rerr != nil {
		logging.WithComponent(ctx, component).Error("hold_create_compensation_failed",
			zap.String("product_id", productID),
			zap.Int("qty", qty),
			zap.Error(rerr),
		)
	}
}

// Consume marks the hold used and returns its snapshot. Checks run in a
// fixed order under the hold's exclusive lock: existence, not already used,
// not expired. This is the only path that sets Consumed, and it excludes
// Release on the same hold.
func (s *Service) Consume(ctx context.Context, holdID string) (_ *domain.Hold, err error) {
	ctx, span := s.tracer.Start(ctx, "Hold.Consume",
		trace.WithAttributes(attribute.String("hold.id", holdID)),
	)
	defer func() { endSpan(span, err) }()

	var snapshot *domain.Hold
	err = s.locks.WithLock(holdID, func() error {
		h, err := s.repo.Get(ctx, holdID)
		if err != nil {
			return err
		}
		if err := h.MarkConsumed(s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, h); err != nil {
			return fmt.Errorf("hold: update: %w", err)
		}
		snapshot = h
		return nil
	})
	if err != nil {
		logging.WithComponent(ctx, component).Warn("hold_consume_rejected",
			zap.String("hold_id", holdID),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncHoldsConsumed()
	logging.WithComponent(ctx, component).Info("hold_consumed",
		zap.String("hold_id", holdID),
		zap.String("product_id", snapshot.ProductID),
		zap.Int("qty", snapshot.Quantity),
	)
	return snapshot, nil
}

// Unconsume reverts a consume whose order creation failed, under the same
// hold lock that serialized the consume. The hold returns to its normal
// lifecycle: consumable again, released by the dispatcher at expiry.
// Reverting an unconsumed or missing hold is a no-op.
func (s *Service) Unconsume(ctx context.Context, holdID string) error {
	logger := logging.WithComponent(ctx, component).With(zap.String("hold_id", holdID))

	return s.locks.WithLock(holdID, func() error {
		h, err := s.repo.Get(ctx, holdID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !h.Consumed {
			return nil
		}
		h.UnmarkConsumed()
		if err := s.repo.Update(ctx, h); err != nil {
			return fmt.Errorf("hold: unconsume: %w", err)
		}
		logger.Info("hold_consume_reverted")
		return nil
	})
}

// Release is the idempotent release path invoked by the expiry dispatcher.
// A missing hold, a consumed hold, or a not-yet-expired hold (an early or
// duplicated firing) is a logged no-op. Otherwise the reserved quantity
// goes back to the inventory store and the hold record is deleted, as one
// unit under the hold's lock.
func (s *Service) Release(ctx context.Context, holdID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "Hold.Release",
		trace.WithAttributes(attribute.String("hold.id", holdID)),
	)
	defer func() { endSpan(span, err) }()

	logger := logging.WithComponent(ctx, component).With(zap.String("hold_id", holdID))

	return s.locks.WithLock(holdID, func() error {
		h, err := s.repo.Get(ctx, holdID)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info("hold_release_noop_not_found")
			return nil
		}
		if err != nil {
			return err
		}
		if h.Consumed {
			logger.Info("hold_release_noop_consumed")
			return nil
		}
		now := s.clock.Now()
		if !h.ExpiredAt(now) {
			logger.Info("hold_release_noop_not_expired",
				zap.Time("expires_at", h.ExpiresAt),
				zap.Time("now", now),
			)
			return nil
		}

		if _, err := s.inventory.Release(ctx, h.ProductID, h.Quantity); err != nil {
			return fmt.Errorf("hold: release stock: %w", err)
		}
		if err := s.repo.Delete(ctx, holdID); err != nil {
			return fmt.Errorf("hold: delete: %w", err)
		}

		s.metrics.IncHoldsReleased()
		logger.Info("hold_released",
			zap.String("product_id", h.ProductID),
			zap.Int("qty", h.Quantity),
		)
		return nil
	})
}

// Get returns the hold snapshot, consumed or not. Settlement reads product
// and quantity from here after consumption.
func (s *Service) Get(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.repo.Get(ctx, holdID)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
