package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type releaseRecorder struct {
	mu        sync.Mutex
	calls     map[string]int
	errs      map[string]int
	fired     chan string
	attempted chan string
}

func newReleaseRecorder() *releaseRecorder {
	return &releaseRecorder{
		calls:     make(map[string]int),
		errs:      make(map[string]int),
		fired:     make(chan string, 64),
		attempted: make(chan string, 64),
	}
}

// failFirst makes the next n calls for holdID return an error.
func (r *releaseRecorder) failFirst(holdID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[holdID] = n
}

func (r *releaseRecorder) release(_ context.Context, holdID string) error {
	r.mu.Lock()
	r.calls[holdID]++
	remaining := r.errs[holdID]
	if remaining > 0 {
		r.errs[holdID] = remaining - 1
	}
	r.mu.Unlock()

	r.attempted <- holdID
	if remaining > 0 {
		return errors.New("store unavailable")
	}
	r.fired <- holdID
	return nil
}

func waitAttempted(t *testing.T, r *releaseRecorder, want string) {
	t.Helper()
	select {
	case got := <-r.attempted:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("release for %s was never attempted", want)
	}
}

func (r *releaseRecorder) count(holdID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[holdID]
}

func waitFired(t *testing.T, r *releaseRecorder, want string) {
	t.Helper()
	select {
	case got := <-r.fired:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("release for %s never fired", want)
	}
}

func TestSchedule_FiresAtExpiry(t *testing.T) {
	rec := newReleaseRecorder()
	d := New(rec.release, clock.NewSystem(), zap.NewNop())
	defer d.Stop()

	d.Schedule("hold-1", time.Now().Add(10*time.Millisecond))
	waitFired(t, rec, "hold-1")
	assert.Equal(t, 1, rec.count("hold-1"))
}

func TestSchedule_PastInstantFiresImmediately(t *testing.T) {
	rec := newReleaseRecorder()
	d := New(rec.release, clock.NewSystem(), zap.NewNop())
	defer d.Stop()

	d.Schedule("hold-1", time.Now().Add(-time.Minute))
	waitFired(t, rec, "hold-1")
}

func TestSchedule_ReplacesPreviousTask(t *testing.T) {
	rec := newReleaseRecorder()
	d := New(rec.release, clock.NewSystem(), zap.NewNop())
	defer d.Stop()

	d.Schedule("hold-1", time.Now().Add(time.Hour))
	d.Schedule("hold-1", time.Now().Add(10*time.Millisecond))

	waitFired(t, rec, "hold-1")
	// The hour-out task was replaced, not queued behind.
	assert.Equal(t, 1, rec.count("hold-1"))
}

func TestFire_RetriesUntilSuccess(t *testing.T) {
	rec := newReleaseRecorder()
	rec.failFirst("hold-1", 2)
	d := New(rec.release, clock.NewSystem(), zap.NewNop(),
		WithRetry(3, time.Millisecond))
	defer d.Stop()

	d.Schedule("hold-1", time.Now())
	waitFired(t, rec, "hold-1")
	assert.Equal(t, 3, rec.count("hold-1"))
}

func TestFire_AbandonsAfterMaxAttempts(t *testing.T) {
	rec := newReleaseRecorder()
	rec.failFirst("hold-1", 10)
	d := New(rec.release, clock.NewSystem(), zap.NewNop(),
		WithRetry(2, time.Millisecond))

	d.Schedule("hold-1", time.Now())
	// The task must start before Stop, or Stop cancels the timer and no
	// attempt ever runs.
	waitAttempted(t, rec, "hold-1")
	d.Stop() // waits for the in-flight firing

	assert.Equal(t, 2, rec.count("hold-1"))
	select {
	case <-rec.fired:
		t.Fatal("release reported success after exhausting retries")
	default:
	}
}

func TestStop_CancelsOutstandingTimers(t *testing.T) {
	rec := newReleaseRecorder()
	d := New(rec.release, clock.NewSystem(), zap.NewNop())

	d.Schedule("hold-1", time.Now().Add(time.Hour))
	d.Schedule("hold-2", time.Now().Add(time.Hour))
	d.Stop()

	assert.Equal(t, 0, rec.count("hold-1"))
	assert.Equal(t, 0, rec.count("hold-2"))

	// Scheduling after Stop is ignored rather than leaking a timer.
	d.Schedule("hold-3", time.Now())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.count("hold-3"))
}

func TestSchedule_ManyHoldsAllFire(t *testing.T) {
	rec := newReleaseRecorder()
	d := New(rec.release, clock.NewSystem(), zap.NewNop())
	defer d.Stop()

	const holds = 20
	for i := 0; i < holds; i++ {
		d.Schedule(holdID(i), time.Now().Add(time.Duration(i)*time.Millisecond))
	}

	seen := make(map[string]bool)
	for i := 0; i < holds; i++ {
		select {
		case id := <-rec.fired:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d releases fired", len(seen), holds)
		}
	}
	require.Len(t, seen, holds)
}

func holdID(i int) string {
	return "hold-" + string(rune('a'+i))
}
