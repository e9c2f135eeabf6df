package product

import (
	"context"
	"testing"
	"time"

	appinv "github.com/flashmart/reservation/internal/application/inventory"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"
	"github.com/flashmart/reservation/internal/infrastructure/memory"
	"github.com/flashmart/reservation/internal/infrastructure/memorycache"
	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/flashmart/reservation/internal/pkg/keylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProductFixture(t *testing.T, stock int) (*Service, *appinv.Store, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	inv := appinv.NewStore(memory.NewProductRepository(), keylock.New())
	p, err := dominv.NewProduct("p-1", "mech keyboard", 8990, stock)
	require.NoError(t, err)
	require.NoError(t, inv.Register(context.Background(), p))

	svc := NewService(inv, memorycache.New(clk), 60*time.Second, 10*time.Second)
	inv.SetCacheRefresher(svc)
	return svc, inv, clk
}

func TestGetProduct(t *testing.T) {
	svc, _, _ := newProductFixture(t, 25)

	view, err := svc.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", view.ID)
	assert.Equal(t, "mech keyboard", view.Name)
	assert.Equal(t, int64(8990), view.Price)
	assert.Equal(t, 25, view.Stock)
}

func TestGetProduct_Unknown(t *testing.T) {
	svc, _, _ := newProductFixture(t, 25)

	_, err := svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, dominv.ErrNotFound)
}

func TestGetProduct_MutationRefreshesCachedStock(t *testing.T) {
	svc, inv, _ := newProductFixture(t, 25)

	// Prime the caches.
	_, err := svc.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)

	_, err = inv.TryReserve(context.Background(), "p-1", 10)
	require.NoError(t, err)

	// The refresher overwrote the snapshot; no TTL wait needed.
	view, err := svc.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 15, view.Stock)
}

// Without the refresher wired, the cached snapshot serves until its TTL
// lapses, then the next read falls back to the authoritative counter.
func TestGetProduct_StockTTLFallsBackToStore(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	inv := appinv.NewStore(memory.NewProductRepository(), keylock.New())
	p, err := dominv.NewProduct("p-1", "mech keyboard", 8990, 25)
	require.NoError(t, err)
	require.NoError(t, inv.Register(context.Background(), p))
	svc := NewService(inv, memorycache.New(clk), 60*time.Second, 10*time.Second)

	_, err = svc.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)

	_, err = inv.TryReserve(context.Background(), "p-1", 10)
	require.NoError(t, err)

	// Within the TTL the stale snapshot serves.
	view, err := svc.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 25, view.Stock)

	clk.Advance(11 * time.Second)

	view, err = svc.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 15, view.Stock)
	// Info outlives the stock snapshot.
	assert.Equal(t, "mech keyboard", view.Name)
}
