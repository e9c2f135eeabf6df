package settlement

import (
	"context"
	"errors"
	"fmt"

	domhold "github.com/flashmart/reservation/internal/domain/hold"
	domorder "github.com/flashmart/reservation/internal/domain/order"
	domain "github.com/flashmart/reservation/internal/domain/webhook"

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

const component = "settlement_service"

// Results recorded on the webhook counter.
const (
	resultApplied   = "applied"
	resultDeferred  = "deferred"
	resultDuplicate = "duplicate"
	resultNoop      = "noop"
)

// HoldReader exposes the retained hold record so a failed payment can
// restore the quantity the order's hold had reserved.
type HoldReader interface {
	Get(ctx context.Context, holdID string) (*domhold.Hold, error)
}

// Service applies payment outcomes to orders exactly once each,
// deduplicated by idempotency key, buffering outcomes whose order does not
// exist yet.
type Service struct {
	notifications domain.Repository
	orders        domorder.Repository
	holds         HoldReader
	inventory     *appinv.Store
	webhookLocks  *keylock.KeyLock
	orderLocks    *keylock.KeyLock
	clock         clock.Clock
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

func NewService(
	notifications domain.Repository,
	orders domorder.Repository,
	holds HoldReader,
	inv *appinv.Store,
	webhookLocks, orderLocks *keylock.KeyLock,
	clk clock.Clock,
	m *metrics.Metrics,
) *Service {
	return &Service{
		notifications: notifications,
		orders:        orders,
		holds:         holds,
		inventory:     inv,
		webhookLocks:  webhookLocks,
		orderLocks:    orderLocks,
		clock:         clk,
		metrics:       m,
		tracer:        otel.Tracer("reservation/settlement"),
	}
}

// RecordNotification durably records a payment outcome, first-write-wins by
// idempotency key, and applies it if the order already exists. It returns
// nil on every duplicate and on every deferred (order-not-yet-created)
// delivery: once recorded, the gateway gets its ack.
func (s *Service) RecordNotification(ctx context.Context, orderID string, outcome domain.Outcome, idempotencyKey string) (err error) {
	ctx, span := s.tracer.Start(ctx, "Settlement.RecordNotification",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("webhook.outcome", string(outcome)),
		),
	)
	defer func() { endSpan(span, err) }()

	logger := logging.WithComponent(ctx, component).With(
		zap.String("order_id", orderID),
		zap.String("idempotency_key", idempotencyKey),
	)

	if idempotencyKey == "" {
		return fmt.Errorf("settlement: idempotency key is required")
	}
	if _, err := domain.ParseOutcome(string(outcome)); err != nil {
		return err
	}

	stored, created, err := s.notifications.InsertIfAbsent(ctx,
		domain.New(idempotencyKey, orderID, outcome, s.clock.Now()))
	if err != nil {
		return fmt.Errorf("settlement: record notification: %w", err)
	}
	if !created && stored.IsProcessed() {
		// Intentional no-op, kept observable for audit.
		logger.Info("webhook_duplicate_ignored")
		s.metrics.IncWebhook(string(outcome), resultDuplicate)
		return nil
	}

	if _, err := s.orders.Get(ctx, stored.OrderID); err != nil {
		if errors.Is(err, domorder.ErrNotFound) {
			logger.Info("webhook_deferred_order_missing")
			s.metrics.IncWebhook(string(outcome), resultDeferred)
			return nil
		}
		return fmt.Errorf("settlement: load order: %w", err)
	}

	return s.apply(ctx, stored.IdempotencyKey)
}

// ApplyPendingForOrder applies every pending notification recorded for the
// order. Called by order creation to drain outcomes that arrived early.
func (s *Service) ApplyPendingForOrder(ctx context.Context, orderID string) error {
	pending, err := s.notifications.ListPendingByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("settlement: list pending: %w", err)
	}
	for _, n := range pending {
		if err := s.apply(ctx, n.IdempotencyKey); err != nil {
			return err
		}
		logging.WithComponent(ctx, component).Info("pending_webhook_applied",
			zap.String("order_id", orderID),
			zap.String("idempotency_key", n.IdempotencyKey),
		)
	}
	return nil
}

// apply performs the exactly-once settlement of one notification. The
// notification lock excludes concurrent retries of the same delivery; the
// nested order lock excludes two different notifications racing the same
// order. Lock order is fixed: webhook, then order, then product.
func (s *Service) apply(ctx context.Context, idempotencyKey string) error {
	logger := logging.WithComponent(ctx, component).With(
		zap.String("idempotency_key", idempotencyKey),
	)

	return s.webhookLocks.WithLock(idempotencyKey, func() error {
		n, err := s.notifications.Get(ctx, idempotencyKey)
		if err != nil {
			return fmt.Errorf("settlement: load notification: %w", err)
		}
		if n.IsProcessed() {
			logger.Info("webhook_already_processed")
			s.metrics.IncWebhook(string(n.Outcome), resultNoop)
			return nil
		}

		return s.orderLocks.WithLock(n.OrderID, func() error {
			ord, err := s.orders.Get(ctx, n.OrderID)
			if err != nil {
				return fmt.Errorf("settlement: load order: %w", err)
			}

			now := s.clock.Now()
			result := resultApplied

			if ord.Settled() {
				// The order left pre_payment under a previous notification;
				// this one is seen but changes nothing.
				logger.Info("order_already_settled_skipping",
					zap.String("order_id", ord.ID),
					zap.String("order_status", string(ord.Status)),
				)
				result = resultNoop
			} else {
				switch n.Outcome {
				case domain.OutcomeSuccess:
					if err := ord.MarkPaid(now); err != nil {
						return err
					}
				case domain.OutcomeFailure:
					if err := ord.MarkCancelled(now); err != nil {
						return err
					}
				default:
					return domain.ErrInvalidOutcome
				}
				// The status write commits the transition. It must land
				// before the stock restore: a retry after a failed update
				// still sees pre_payment and runs the whole branch again,
				// so restoring first would credit the stock twice.
				if err := s.orders.Update(ctx, ord); err != nil {
					return fmt.Errorf("settlement: update order: %w", err)
				}
				if n.Outcome == domain.OutcomeFailure {
					if err := s.restoreHoldStock(ctx, ord); err != nil {
						// The cancellation is already durable; a retry would
						// find the order settled and skip. Surface for audit
						// instead of failing the delivery.
						logger.Error("settlement_stock_restore_failed",
							zap.String("order_id", ord.ID),
							zap.Error(err),
						)
					}
				}
			}

			// The order mutation above and this mark-processed form one
			// unit under the locks: no path leaves a settled order behind a
			// still-pending notification.
			n.MarkProcessed(now)
			if err := s.notifications.Update(ctx, n); err != nil {
				return fmt.Errorf("settlement: mark processed: %w", err)
			}

			s.metrics.IncWebhook(string(n.Outcome), result)
			logger.Info("webhook_processed",
				zap.String("order_id", ord.ID),
				zap.String("outcome", string(n.Outcome)),
				zap.String("order_status", string(ord.Status)),
			)
			return nil
		})
	})
}

// restoreHoldStock returns the cancelled order's reserved quantity to the
// inventory store, read from the consumed hold record retained for exactly
// this purpose.
func (s *Service) restoreHoldStock(ctx context.Context, ord *domorder.Order) error {
	h, err := s.holds.Get(ctx, ord.HoldID)
	if err != nil {
		// The hold should be retained through the order's lifetime; a miss
		// here means stock cannot be restored and must be audited.
		logging.WithComponent(ctx, component).Error("settlement_hold_missing",
			zap.String("order_id", ord.ID),
			zap.String("hold_id", ord.HoldID),
			zap.Error(err),
		)
		return fmt.Errorf("settlement: load hold %s: %w", ord.HoldID, err)
	}
	if _, err := s.inventory.Release(ctx, h.ProductID, h.Quantity); err != nil {
		return fmt.Errorf("settlement: restore stock: %w", err)
	}
	return nil
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
