package settlement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apphold "github.com/flashmart/reservation/internal/application/hold"
	appinv "github.com/flashmart/reservation/internal/application/inventory"
	apporder "github.com/flashmart/reservation/internal/application/order"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"
	domorder "github.com/flashmart/reservation/internal/domain/order"
	domain "github.com/flashmart/reservation/internal/domain/webhook"
	"github.com/flashmart/reservation/internal/infrastructure/memory"
	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/flashmart/reservation/internal/pkg/keylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIDGen struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (g *stubIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

type noopScheduler struct{}

func (noopScheduler) Schedule(string, time.Time) {}

// env wires the full settlement path over the in-memory adapters: real
// inventory store, hold service, order service, settlement service.
type env struct {
	clk        *clock.Mock
	inventory  *appinv.Store
	holds      *apphold.Service
	orders     *apporder.Service
	settlement *Service
	orderRepo  domorder.Repository
}

func newEnv(t *testing.T, stock int) *env {
	return newEnvWithOrderRepo(t, stock, memory.NewOrderRepository())
}

func newEnvWithOrderRepo(t *testing.T, stock int, orderRepo domorder.Repository) *env {
	t.Helper()

	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	inv := appinv.NewStore(memory.NewProductRepository(), keylock.New())
	p, err := dominv.NewProduct("p-1", "console bundle", 49900, stock)
	require.NoError(t, err)
	require.NoError(t, inv.Register(context.Background(), p))

	holdRepo := memory.NewHoldRepository()
	holds := apphold.NewService(holdRepo, inv, keylock.New(), noopScheduler{}, clk,
		&stubIDGen{prefix: "hold"}, nil)

	webhookRepo := memory.NewWebhookRepository()

	settlement := NewService(webhookRepo, orderRepo, holds, inv,
		keylock.New(), keylock.New(), clk, nil)
	orders := apporder.NewService(orderRepo, holds, settlement, clk,
		&stubIDGen{prefix: "order"}, nil)

	return &env{
		clk:        clk,
		inventory:  inv,
		holds:      holds,
		orders:     orders,
		settlement: settlement,
		orderRepo:  orderRepo,
	}
}

func (e *env) available(t *testing.T) int {
	t.Helper()
	p, err := e.inventory.Get(context.Background(), "p-1")
	require.NoError(t, err)
	return p.Available
}

// placeOrder runs the hold-then-order happy path and returns the order.
func (e *env) placeOrder(t *testing.T, qty int) *domorder.Order {
	t.Helper()
	h, err := e.holds.Create(context.Background(), "p-1", qty)
	require.NoError(t, err)
	ord, err := e.orders.CreateFromHold(context.Background(), h.ID)
	require.NoError(t, err)
	return ord
}

func (e *env) orderStatus(t *testing.T, orderID string) domorder.Status {
	t.Helper()
	ord, err := e.orderRepo.Get(context.Background(), orderID)
	require.NoError(t, err)
	return ord.Status
}

func TestRecordNotification_SuccessMarksOrderPaid(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 3)

	err := e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeSuccess, "key-1")
	require.NoError(t, err)

	assert.Equal(t, domorder.StatusPaid, e.orderStatus(t, ord.ID))
	// Paid order keeps its units.
	assert.Equal(t, 7, e.available(t))
}

func TestRecordNotification_FailureCancelsAndRestoresStock(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 3)
	require.Equal(t, 7, e.available(t))

	err := e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-1")
	require.NoError(t, err)

	assert.Equal(t, domorder.StatusCancelled, e.orderStatus(t, ord.ID))
	assert.Equal(t, 10, e.available(t))
}

func TestRecordNotification_ReplaySameKeyIsNoop(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 3)

	require.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeSuccess, "key-1"))
	// Gateway retries the same delivery twice more.
	require.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeSuccess, "key-1"))
	require.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-1"))

	assert.Equal(t, domorder.StatusPaid, e.orderStatus(t, ord.ID))
	assert.Equal(t, 7, e.available(t))
}

func TestRecordNotification_ContradictorySecondKeyIsNoop(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 3)

	require.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeSuccess, "key-1"))
	// A distinct delivery reporting the opposite outcome: the order already
	// settled, so nothing changes and no stock moves.
	require.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-2"))

	assert.Equal(t, domorder.StatusPaid, e.orderStatus(t, ord.ID))
	assert.Equal(t, 7, e.available(t))
}

func TestRecordNotification_BeforeOrderExistsDefersThenApplies(t *testing.T) {
	e := newEnv(t, 10)

	h, err := e.holds.Create(context.Background(), "p-1", 2)
	require.NoError(t, err)

	// The gateway is faster than the client: the outcome for the order the
	// client is about to create arrives first. Order IDs are sequential
	// here, so the next one is known.
	const orderID = "order-1"
	require.NoError(t, e.settlement.RecordNotification(context.Background(), orderID, domain.OutcomeSuccess, "key-1"))

	// Recorded but not applied: the order does not exist yet.
	_, err = e.orderRepo.Get(context.Background(), orderID)
	require.ErrorIs(t, err, domorder.ErrNotFound)

	ord, err := e.orders.CreateFromHold(context.Background(), h.ID)
	require.NoError(t, err)
	require.Equal(t, orderID, ord.ID)

	// Creation drained the buffered outcome; the caller already sees paid.
	assert.Equal(t, domorder.StatusPaid, ord.Status)
	assert.Equal(t, domorder.StatusPaid, e.orderStatus(t, orderID))
	assert.Equal(t, 8, e.available(t))
}

func TestRecordNotification_BufferedFailureRestoresStockOnCreation(t *testing.T) {
	e := newEnv(t, 10)

	h, err := e.holds.Create(context.Background(), "p-1", 2)
	require.NoError(t, err)
	require.Equal(t, 8, e.available(t))

	require.NoError(t, e.settlement.RecordNotification(context.Background(), "order-1", domain.OutcomeFailure, "key-1"))

	ord, err := e.orders.CreateFromHold(context.Background(), h.ID)
	require.NoError(t, err)

	assert.Equal(t, domorder.StatusCancelled, ord.Status)
	assert.Equal(t, 10, e.available(t))
}

// flakyOrderRepo fails the next n Updates with a transient error.
type flakyOrderRepo struct {
	domorder.Repository
	mu          sync.Mutex
	failUpdates int
}

func (r *flakyOrderRepo) Update(ctx context.Context, ord *domorder.Order) error {
	r.mu.Lock()
	fail := r.failUpdates > 0
	if fail {
		r.failUpdates--
	}
	r.mu.Unlock()
	if fail {
		return fmt.Errorf("storage unavailable")
	}
	return r.Repository.Update(ctx, ord)
}

// A delivery whose order update fails midway must be retryable without
// crediting the cancelled order's stock twice: the status write commits
// the transition, only then does the restore run.
func TestRecordNotification_RetryAfterUpdateFailureRestoresStockOnce(t *testing.T) {
	repo := &flakyOrderRepo{Repository: memory.NewOrderRepository(), failUpdates: 1}
	e := newEnvWithOrderRepo(t, 10, repo)
	ord := e.placeOrder(t, 3)
	require.Equal(t, 7, e.available(t))

	// First delivery dies on the status write; nothing may have moved.
	err := e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-1")
	require.Error(t, err)
	assert.Equal(t, domorder.StatusPrePayment, e.orderStatus(t, ord.ID))
	assert.Equal(t, 7, e.available(t))

	// The gateway retries the same delivery; it settles and restores once.
	require.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-1"))
	assert.Equal(t, domorder.StatusCancelled, e.orderStatus(t, ord.ID))
	assert.Equal(t, 10, e.available(t))
}

func TestRecordNotification_RequiresIdempotencyKey(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 1)

	err := e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeSuccess, "")
	assert.Error(t, err)
	assert.Equal(t, domorder.StatusPrePayment, e.orderStatus(t, ord.ID))
}

func TestRecordNotification_RejectsUnknownOutcome(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 1)

	err := e.settlement.RecordNotification(context.Background(), ord.ID, domain.Outcome("refunded"), "key-1")
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	assert.Equal(t, domorder.StatusPrePayment, e.orderStatus(t, ord.ID))
}

// Concurrent retries of one delivery settle the order exactly once.
func TestRecordNotification_ConcurrentSameKey(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 3)

	const retries = 16
	var wg sync.WaitGroup
	for i := 0; i < retries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, domorder.StatusCancelled, e.orderStatus(t, ord.ID))
	// The cancelled order's units came back exactly once.
	assert.Equal(t, 10, e.available(t))
}

// Two distinct deliveries with opposite outcomes race one order; whichever
// applies first wins and the loser records as a no-op.
func TestRecordNotification_ConcurrentOpposingKeys(t *testing.T) {
	e := newEnv(t, 10)
	ord := e.placeOrder(t, 3)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeSuccess, "key-s"))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, e.settlement.RecordNotification(context.Background(), ord.ID, domain.OutcomeFailure, "key-f"))
	}()
	wg.Wait()

	status := e.orderStatus(t, ord.ID)
	switch status {
	case domorder.StatusPaid:
		assert.Equal(t, 7, e.available(t))
	case domorder.StatusCancelled:
		assert.Equal(t, 10, e.available(t))
	default:
		t.Fatalf("order left in %s", status)
	}
}
