package order

import (
	"context"
	"fmt"

	domhold "github.com/flashmart/reservation/internal/domain/hold"
	domain "github.com/flashmart/reservation/internal/domain/order"

	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/flashmart/reservation/internal/pkg/logging"
	"github.com/flashmart/reservation/internal/pkg/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const component = "order_service"

// IDGenerator issues order identifiers.
type IDGenerator interface {
	NewID() string
}

// HoldConsumer is the hold manager surface the order flow needs: the
// single allowed terminal transition of a hold other than expiry, plus the
// compensation that reverts it when the order insert fails.
type HoldConsumer interface {
	Consume(ctx context.Context, holdID string) (*domhold.Hold, error)
	Unconsume(ctx context.Context, holdID string) error
}

// PendingApplier drains payment notifications that arrived before the
// order existed.
type PendingApplier interface {
	ApplyPendingForOrder(ctx context.Context, orderID string) error
}

// Service converts valid, unexpired, unused holds into pre-payment orders.
type Service struct {
	repo       domain.Repository
	holds      HoldConsumer
	settlement PendingApplier
	clock      clock.Clock
	idGen      IDGenerator
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

func NewService(
	repo domain.Repository,
	holds HoldConsumer,
	settlement PendingApplier,
	clk clock.Clock,
	idGen IDGenerator,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:       repo,
		holds:      holds,
		settlement: settlement,
		clock:      clk,
		idGen:      idGen,
		metrics:    m,
		tracer:     otel.Tracer("reservation/order"),
	}
}

// CreateFromHold consumes the hold and creates its order in pre_payment
// state, then applies any notification buffered for this order before it
// existed. Hold validation errors (not found, already used, expired)
// propagate unchanged as client-facing reasons.
func (s *Service) CreateFromHold(ctx context.Context, holdID string) (_ *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "Order.CreateFromHold",
		trace.WithAttributes(attribute.String("hold.id", holdID)),
	)
	defer func() { endSpan(span, err) }()

	logger := logging.WithComponent(ctx, component).With(zap.String("hold_id", holdID))

	h, err := s.holds.Consume(ctx, holdID)
	if err != nil {
		return nil, err
	}

	entity := domain.New(s.idGen.NewID(), h.ID, s.clock.Now())
	if err := s.repo.Insert(ctx, entity); err != nil {
		// Consume and insert form one unit: a failed insert reverts the
		// consume so the hold is retryable and still releasable at expiry,
		// instead of stranding its reserved stock.
		if uerr := s.holds.Unconsume(ctx, h.ID); uerr != nil {
			logger.Error("order_create_compensation_failed",
				zap.Error(uerr),
			)
		}
		return nil, fmt.Errorf("order: insert: %w", err)
	}

	s.metrics.IncOrdersCreated()
	logger.Info("order_created",
		zap.String("order_id", entity.ID),
		zap.String("status", string(entity.Status)),
	)
	span.SetAttributes(attribute.String("order.id", entity.ID))

	// Close the webhook-before-order race: outcomes recorded against this
	// order ID before it existed apply now.
	if err := s.settlement.ApplyPendingForOrder(ctx, entity.ID); err != nil {
		logger.Error("pending_notifications_apply_failed",
			zap.String("order_id", entity.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("order: apply pending notifications: %w", err)
	}

	// Return the post-settlement state so the caller sees an applied
	// buffered outcome, not the stale pre_payment snapshot.
	final, err := s.repo.Get(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("order: reload: %w", err)
	}
	return final, nil
}

// Get returns the order by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.Get(ctx, id)
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
