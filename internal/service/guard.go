package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"seatwarden/internal/clock"
	"seatwarden/internal/domain"
	"seatwarden/internal/metrics"
	"seatwarden/internal/models"
	"seatwarden/internal/retry"

	"github.com/rs/zerolog"
)

type lockEntry struct {
	mu   sync.RWMutex
	refs int
}

// departureLocks hands out one RWMutex per departure. Entries are dropped once
// no goroutine holds or waits on them.
type departureLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newDepartureLocks() *departureLocks {
	return &departureLocks{locks: make(map[string]*lockEntry)}
}

func (l *departureLocks) acquire(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	return e
}

func (l *departureLocks) release(id string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *departureLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// MutateFunc runs inside the departure transaction. now is read after the lock
// is held and is the instant every expiry decision in fn must use.
type MutateFunc func(ctx context.Context, dep *models.Departure, now time.Time) error

// Coordinator serializes capacity-affecting work per departure. Every mutation
// runs under the departure's write lock, inside one store transaction, and ends
// with a version compare-and-swap. A lost swap is retried with backoff.
type Coordinator struct {
	store  domain.Store
	clock  clock.Clock
	policy retry.Policy
	locks  *departureLocks
	logger *zerolog.Logger
}

func NewCoordinator(store domain.Store, clk clock.Clock, policy retry.Policy, logger *zerolog.Logger) *Coordinator {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Coordinator{
		store:  store,
		clock:  clk,
		policy: policy,
		locks:  newDepartureLocks(),
		logger: logger,
	}
}

func (c *Coordinator) Store() domain.Store { return c.store }

func (c *Coordinator) Now() time.Time { return c.clock.Now() }

// Mutate loads the departure, runs fn and bumps the departure version, all in
// one transaction under the departure write lock. fn may run more than once.
func (c *Coordinator) Mutate(ctx context.Context, departureID string, fn MutateFunc) error {
	entry := c.locks.acquire(departureID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		c.locks.release(departureID, entry)
	}()

	onRetry := func(attempt int, err error) {
		metrics.IncConcurrencyRetry()
		c.logger.Debug().Err(err).Str("departure_id", departureID).Int("attempt", attempt).Msg("departure version conflict, retrying")
	}

	err := retry.Do(ctx, c.policy, isConflict, onRetry, func(ctx context.Context) error {
		return c.store.WithTx(ctx, func(txCtx context.Context) error {
			dep, err := c.store.GetDeparture(txCtx, departureID)
			if err != nil {
				return err
			}
			expected := dep.Version
			now := c.clock.Now()
			if err := fn(txCtx, dep, now); err != nil {
				return err
			}
			version, err := c.store.BumpDepartureVersion(txCtx, dep.ID, expected, now)
			if err != nil {
				return err
			}
			dep.Version = version
			return nil
		})
	})
	if isConflict(err) {
		c.logger.Warn().Err(err).Str("departure_id", departureID).Msg("departure mutation gave up after retries")
		return fmt.Errorf("%w: departure %s", domain.ErrTryAgain, departureID)
	}
	return err
}

// Read runs fn under the departure read lock so it never observes a mutation
// of that departure in progress.
func (c *Coordinator) Read(ctx context.Context, departureID string, fn func(ctx context.Context, now time.Time) error) error {
	entry := c.locks.acquire(departureID)
	entry.mu.RLock()
	defer func() {
		entry.mu.RUnlock()
		c.locks.release(departureID, entry)
	}()
	return fn(ctx, c.clock.Now())
}

// breakdown reads the capacity usage of dep at now.
func (c *Coordinator) breakdown(ctx context.Context, dep *models.Departure, now time.Time) (models.CapacityBreakdown, error) {
	usage, err := c.store.CapacityUsage(ctx, dep.ID, now)
	if err != nil {
		return models.CapacityBreakdown{}, err
	}
	return models.NewCapacityBreakdown(dep.TotalCapacity, usage), nil
}

// ensureCapacity fails with ErrInsufficientCapacity unless seats more seats fit.
func (c *Coordinator) ensureCapacity(ctx context.Context, dep *models.Departure, seats int, now time.Time) error {
	usage, err := c.store.CapacityUsage(ctx, dep.ID, now)
	if err != nil {
		return err
	}
	remaining := dep.TotalCapacity - usage.Total()
	if remaining < seats {
		return fmt.Errorf("%w: requested %d, remaining %d", domain.ErrInsufficientCapacity, seats, max(remaining, 0))
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrentModification)
}
