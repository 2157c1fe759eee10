package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore loses the version compare-and-swap a fixed number of times.
type flakyStore struct {
	domain.Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakyStore) BumpDepartureVersion(ctx context.Context, id string, expected int64, now time.Time) (int64, error) {
	s.calls.Add(1)
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return 0, domain.ErrConcurrentModification
	}
	return s.Store.BumpDepartureVersion(ctx, id, expected, now)
}

func newFlakyHarness(t *testing.T, failures int32) (*harness, *flakyStore) {
	t.Helper()
	var flaky *flakyStore
	h := newHarnessWithStore(t, func(s domain.Store) domain.Store {
		flaky = &flakyStore{Store: s}
		flaky.failures.Store(failures)
		return flaky
	})
	return h, flaky
}

func TestCoordinator_RetriesLostVersionCheck(t *testing.T) {
	h, flaky := newFlakyHarness(t, 2)
	dep := h.departure(t, 3)

	hold := h.hold(t, dep.ID, 2)
	assert.EqualValues(t, 3, flaky.calls.Load())
	assert.Equal(t, 1, h.remaining(t, dep.ID))
	assert.Equal(t, 1, h.log.count(events.EventHoldCreated))

	active, err := h.holds.ListActiveHolds(context.Background(), dep.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, hold.ID, active[0].ID)
}

func TestCoordinator_GivesUpAfterRetries(t *testing.T) {
	h, flaky := newFlakyHarness(t, 100)
	dep := h.departure(t, 3)

	_, err := h.holds.CreateHold(context.Background(), domain.CreateHoldInput{DepartureID: dep.ID, SeatCount: 1})
	require.ErrorIs(t, err, domain.ErrTryAgain)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.EqualValues(t, 4, flaky.calls.Load())

	// every attempt rolled back
	assert.Equal(t, 3, h.remaining(t, dep.ID))
	assert.Equal(t, 0, h.log.count(events.EventHoldCreated))
}

func TestCoordinator_DeparturesDoNotContend(t *testing.T) {
	h := newHarness(t)
	depA := h.departure(t, 2)
	depB := h.departure(t, 2)

	entry := h.coord.locks.acquire(depA.ID)
	entry.mu.Lock()

	done := make(chan error, 1)
	go func() {
		_, err := h.holds.CreateHold(context.Background(), domain.CreateHoldInput{DepartureID: depB.ID, SeatCount: 1})
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("hold on an unrelated departure blocked")
	}

	blocked := make(chan error, 1)
	go func() {
		_, err := h.holds.CreateHold(context.Background(), domain.CreateHoldInput{DepartureID: depA.ID, SeatCount: 1})
		blocked <- err
	}()
	select {
	case <-blocked:
		t.Fatal("hold ran while the departure lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	entry.mu.Unlock()
	h.coord.locks.release(depA.ID, entry)
	require.NoError(t, <-blocked)
	assert.Equal(t, 0, h.coord.locks.size())
}

func TestCoordinator_FailedMutationRollsBack(t *testing.T) {
	h := newHarness(t)
	dep := h.departure(t, 3)
	boom := errors.New("boom")

	err := h.coord.Mutate(context.Background(), dep.ID, func(ctx context.Context, d *models.Departure, now time.Time) error {
		require.NoError(t, h.coord.Store().CreateHold(ctx, &models.Hold{
			ID: "h-rollback", DepartureID: d.ID, SeatCount: 3, HoldType: models.HoldCart,
			Status: models.HoldActive, ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = h.store.GetHold(context.Background(), "h-rollback")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
	assert.Equal(t, 3, h.remaining(t, dep.ID))

	after, err := h.store.GetDeparture(context.Background(), dep.ID)
	require.NoError(t, err)
	assert.Equal(t, dep.Version, after.Version)
}

func TestCoordinator_MissingDeparture(t *testing.T) {
	h := newHarness(t)
	called := false
	err := h.coord.Mutate(context.Background(), "missing", func(context.Context, *models.Departure, time.Time) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrDepartureNotFound)
	assert.False(t, called)
	assert.Equal(t, 0, h.coord.locks.size())
}

func TestDepartureLocks(t *testing.T) {
	l := newDepartureLocks()
	a1 := l.acquire("a")
	a2 := l.acquire("a")
	assert.Same(t, a1, a2)
	l.acquire("b")
	assert.Equal(t, 2, l.size())

	l.release("a", a1)
	assert.Equal(t, 2, l.size())
	l.release("a", a2)
	assert.Equal(t, 1, l.size())
}

func TestOutbox(t *testing.T) {
	bus := events.NewEventBus()
	log := &eventLog{}
	bus.SubscribeAll(log.handle)

	var (
		out   outbox
		fired int
	)
	out.add(events.EventHoldCreated, events.HoldPayload{HoldID: "stale"})
	out.onCommit(func() { fired++ })
	out.reset()
	out.add(events.EventHoldCreated, events.HoldPayload{HoldID: "h1"})
	out.onCommit(func() { fired++ })

	logger := testLogger()
	out.flush(bus, logger)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, log.count(events.EventHoldCreated))

	var payload events.HoldPayload
	log.last(t, events.EventHoldCreated, &payload)
	assert.Equal(t, "h1", payload.HoldID)

	out.flush(nil, logger)
	assert.Equal(t, 2, fired)
}
