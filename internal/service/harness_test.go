package service

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"seatwarden/internal/clock"
	"seatwarden/internal/config"
	"seatwarden/internal/database"
	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/models"
	"seatwarden/internal/retry"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

var testTTL = config.HoldTTLConfig{
	Cart:            15 * time.Minute,
	PaymentPending:  20 * time.Minute,
	ApprovalPending: 48 * time.Hour,
}

type eventLog struct {
	mu     sync.Mutex
	events []*events.Event
}

func (l *eventLog) handle(e *events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (l *eventLog) last(t *testing.T, eventType string, into interface{}) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == eventType {
			require.NoError(t, json.Unmarshal(l.events[i].Payload, into))
			return
		}
	}
	t.Fatalf("no %s event", eventType)
}

type harness struct {
	db         *database.DB
	store      domain.Store
	clock      *clock.Manual
	coord      *Coordinator
	log        *eventLog
	departures *DepartureService
	blocks     *BlockService
	avail      *AvailabilityService
	holds      *HoldService
	bookings   *BookingService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, nil)
}

// newHarnessWithStore builds every service over a fresh SQLite file. wrap, when
// set, decorates the store the services see.
func newHarnessWithStore(t *testing.T, wrap func(domain.Store) domain.Store) *harness {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var store domain.Store = db
	if wrap != nil {
		store = wrap(db)
	}

	clk := clock.NewManual(t0)
	policy := retry.Policy{MaxRetries: 3, InitialDelay: time.Microsecond, MaxDelay: time.Millisecond}
	coord := NewCoordinator(store, clk, policy, &logger)

	bus := events.NewEventBus()
	log := &eventLog{}
	bus.SubscribeAll(log.handle)

	holds := NewHoldService(coord, testTTL, 100, bus, &logger)
	return &harness{
		db:         db,
		store:      store,
		clock:      clk,
		coord:      coord,
		log:        log,
		departures: NewDepartureService(coord, bus, &logger),
		blocks:     NewBlockService(coord, bus, &logger),
		avail:      NewAvailabilityService(coord, &logger),
		holds:      holds,
		bookings:   NewBookingService(coord, holds, bus, &logger),
	}
}

func (h *harness) departure(t *testing.T, capacity int) *models.Departure {
	t.Helper()
	dep, err := h.departures.CreateDeparture(context.Background(), domain.CreateDepartureInput{
		ResourceID:    "ferry-7",
		StartsAt:      t0.Add(48 * time.Hour),
		EndsAt:        t0.Add(50 * time.Hour),
		TotalCapacity: capacity,
	})
	require.NoError(t, err)
	return dep
}

func (h *harness) remaining(t *testing.T, departureID string) int {
	t.Helper()
	av, err := h.avail.CheckAvailability(context.Background(), departureID, 0)
	require.NoError(t, err)
	return av.RemainingSeats
}

func (h *harness) hold(t *testing.T, departureID string, seats int) *models.Hold {
	t.Helper()
	hold, err := h.holds.CreateHold(context.Background(), domain.CreateHoldInput{
		DepartureID: departureID,
		SeatCount:   seats,
		HoldType:    models.HoldCart,
	})
	require.NoError(t, err)
	return hold
}

func (h *harness) holdStatus(t *testing.T, holdID string) models.HoldStatus {
	t.Helper()
	hold, err := h.store.GetHold(context.Background(), holdID)
	require.NoError(t, err)
	return hold.Status
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
