package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/flashmart/reservation/internal/domain/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIfAbsent_FirstWriteWins(t *testing.T) {
	repo := NewWebhookRepository()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first := domain.New("key-1", "order-1", domain.OutcomeSuccess, now)
	stored, created, err := repo.InsertIfAbsent(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.OutcomeSuccess, stored.Outcome)

	// Same key, different payload: the stored record is returned untouched.
	second := domain.New("key-1", "order-1", domain.OutcomeFailure, now.Add(time.Second))
	stored, created, err = repo.InsertIfAbsent(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.OutcomeSuccess, stored.Outcome)
	assert.Equal(t, now, stored.ReceivedAt)
}

func TestInsertIfAbsent_ConcurrentSingleWinner(t *testing.T) {
	repo := NewWebhookRepository()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	const writers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := repo.InsertIfAbsent(context.Background(),
				domain.New("key-1", "order-1", domain.OutcomeSuccess, now))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestInsertIfAbsent_RequiresKey(t *testing.T) {
	repo := NewWebhookRepository()
	_, _, err := repo.InsertIfAbsent(context.Background(),
		domain.New("", "order-1", domain.OutcomeSuccess, time.Now()))
	assert.Error(t, err)
}

func TestListPendingByOrder(t *testing.T) {
	repo := NewWebhookRepository()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	pendingSame := domain.New("key-1", "order-1", domain.OutcomeSuccess, now)
	pendingOther := domain.New("key-2", "order-2", domain.OutcomeSuccess, now)
	processed := domain.New("key-3", "order-1", domain.OutcomeFailure, now)
	processed.MarkProcessed(now)

	for _, n := range []*domain.Notification{pendingSame, pendingOther, processed} {
		_, _, err := repo.InsertIfAbsent(context.Background(), n)
		require.NoError(t, err)
	}

	got, err := repo.ListPendingByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "key-1", got[0].IdempotencyKey)
}

func TestUpdate_PersistsProcessedState(t *testing.T) {
	repo := NewWebhookRepository()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	n := domain.New("key-1", "order-1", domain.OutcomeSuccess, now)
	_, _, err := repo.InsertIfAbsent(context.Background(), n)
	require.NoError(t, err)

	n.MarkProcessed(now.Add(time.Second))
	require.NoError(t, repo.Update(context.Background(), n))

	got, err := repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	assert.True(t, got.IsProcessed())
	require.NotNil(t, got.ProcessedAt)
	assert.Equal(t, now.Add(time.Second), *got.ProcessedAt)
}

func TestGet_CloneIsolation(t *testing.T) {
	repo := NewWebhookRepository()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, _, err := repo.InsertIfAbsent(context.Background(),
		domain.New("key-1", "order-1", domain.OutcomeSuccess, now))
	require.NoError(t, err)

	got, err := repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	got.MarkProcessed(now)

	// Mutating the returned copy must not leak into the store.
	again, err := repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	assert.False(t, again.IsProcessed())
}
