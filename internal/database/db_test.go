package database

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "seatwarden.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedDeparture(t *testing.T, db *DB, id string, capacity int) *models.Departure {
	t.Helper()
	dep := &models.Departure{
		ID:            id,
		ResourceID:    "boat-1",
		StartsAt:      baseTime.Add(24 * time.Hour),
		EndsAt:        baseTime.Add(26 * time.Hour),
		TotalCapacity: capacity,
		Status:        models.DepartureOpen,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	require.NoError(t, db.CreateDeparture(context.Background(), dep))
	return dep
}

func TestNewDB_EmptyPath(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewDB("  ", &logger)
	assert.Error(t, err)
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNewDB_InMemory(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	seedDeparture(t, db, "dep-mem", 4)
	dep, err := db.GetDeparture(ctx, "dep-mem")
	require.NoError(t, err)
	assert.Equal(t, 4, dep.TotalCapacity)
}

func TestDepartureRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seeded := seedDeparture(t, db, "dep-1", 10)

	got, err := db.GetDeparture(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, seeded.ResourceID, got.ResourceID)
	assert.True(t, seeded.StartsAt.Equal(got.StartsAt))
	assert.Equal(t, models.DepartureOpen, got.Status)
	assert.Equal(t, int64(0), got.Version)

	got.TotalCapacity = 12
	got.Status = models.DepartureClosed
	got.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, db.UpdateDeparture(ctx, got))

	again, err := db.GetDeparture(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, 12, again.TotalCapacity)
	assert.Equal(t, models.DepartureClosed, again.Status)

	_, err = db.GetDeparture(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDepartureNotFound)

	err = db.UpdateDeparture(ctx, &models.Departure{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrDepartureNotFound)
}

func TestBumpDepartureVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedDeparture(t, db, "dep-1", 10)

	v, err := db.BumpDepartureVersion(ctx, "dep-1", 0, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = db.BumpDepartureVersion(ctx, "dep-1", 0, baseTime)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	dep, err := db.GetDeparture(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dep.Version)
}

func TestListDepartures(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i, res := range []string{"boat-1", "boat-2", "boat-1"} {
		dep := &models.Departure{
			ID:            string(rune('a' + i)),
			ResourceID:    res,
			StartsAt:      baseTime.AddDate(0, 0, i),
			EndsAt:        baseTime.AddDate(0, 0, i).Add(time.Hour),
			TotalCapacity: 5,
			Status:        models.DepartureOpen,
			CreatedAt:     baseTime,
			UpdatedAt:     baseTime,
		}
		require.NoError(t, db.CreateDeparture(ctx, dep))
	}

	all, err := db.ListDepartures(ctx, baseTime, baseTime.AddDate(0, 0, 3), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)

	boat1, err := db.ListDepartures(ctx, baseTime, baseTime.AddDate(0, 0, 3), "boat-1")
	require.NoError(t, err)
	assert.Len(t, boat1, 2)

	// upper bound is exclusive
	window, err := db.ListDepartures(ctx, baseTime, baseTime.AddDate(0, 0, 2), "")
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestCapacityUsage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedDeparture(t, db, "dep-1", 20)
	seedDeparture(t, db, "dep-2", 20)

	now := baseTime
	holds := []*models.Hold{
		{ID: "h-live", DepartureID: "dep-1", SeatCount: 3, HoldType: models.HoldCart, Status: models.HoldActive, ExpiresAt: now.Add(time.Minute)},
		{ID: "h-edge", DepartureID: "dep-1", SeatCount: 1, HoldType: models.HoldCart, Status: models.HoldActive, ExpiresAt: now},
		{ID: "h-stale", DepartureID: "dep-1", SeatCount: 5, HoldType: models.HoldCart, Status: models.HoldActive, ExpiresAt: now.Add(-time.Nanosecond)},
		{ID: "h-released", DepartureID: "dep-1", SeatCount: 7, HoldType: models.HoldCart, Status: models.HoldReleased, ExpiresAt: now.Add(time.Hour)},
		{ID: "h-other", DepartureID: "dep-2", SeatCount: 9, HoldType: models.HoldCart, Status: models.HoldActive, ExpiresAt: now.Add(time.Hour)},
	}
	for _, h := range holds {
		h.CreatedAt, h.UpdatedAt = now, now
		require.NoError(t, db.CreateHold(ctx, h))
	}
	require.NoError(t, db.CreateBlock(ctx, &models.Block{ID: "b-1", DepartureID: "dep-1", SeatCount: 2, BlockType: models.BlockStaff, CreatedAt: now}))
	require.NoError(t, db.CreateBooking(ctx, &models.Booking{ID: "bk-1", DepartureID: "dep-1", SeatCount: 4, Status: models.BookingConfirmed, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, db.CreateBooking(ctx, &models.Booking{ID: "bk-2", DepartureID: "dep-1", SeatCount: 6, Status: models.BookingCancelled, CreatedAt: now, UpdatedAt: now}))

	usage, err := db.CapacityUsage(ctx, "dep-1", now)
	require.NoError(t, err)
	assert.Equal(t, models.CapacityUsage{Held: 4, Blocked: 2, Confirmed: 4}, usage)

	empty, err := db.CapacityUsage(ctx, "nope", now)
	require.NoError(t, err)
	assert.Equal(t, models.CapacityUsage{}, empty)
}

func TestHoldQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedDeparture(t, db, "dep-1", 20)
	seedDeparture(t, db, "dep-2", 20)
	now := baseTime

	mk := func(id, dep string, expires time.Time) {
		require.NoError(t, db.CreateHold(ctx, &models.Hold{
			ID: id, DepartureID: dep, SeatCount: 1, HoldType: models.HoldCart,
			Status: models.HoldActive, ExpiresAt: expires, CreatedAt: now, UpdatedAt: now,
		}))
	}
	mk("live", "dep-1", now.Add(time.Minute))
	mk("expired-1", "dep-1", now.Add(-time.Minute))
	mk("expired-2", "dep-2", now.Add(-time.Second))

	active, err := db.ListActiveHolds(ctx, "dep-1", now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].ID)

	expired, err := db.ListExpiredHolds(ctx, "dep-1", now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired-1", expired[0].ID)

	deps, err := db.DeparturesWithExpiredHolds(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"dep-1", "dep-2"}, deps)

	limited, err := db.DeparturesWithExpiredHolds(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	h, err := db.GetHold(ctx, "expired-1")
	require.NoError(t, err)
	h.Status = models.HoldExpired
	h.UpdatedAt = now
	require.NoError(t, db.UpdateHold(ctx, h))

	byStatus, err := db.ListHoldsByStatus(ctx, "dep-1", models.HoldExpired)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "expired-1", byStatus[0].ID)

	_, err = db.GetHold(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
	assert.ErrorIs(t, db.UpdateHold(ctx, &models.Hold{ID: "missing"}), domain.ErrHoldNotFound)
}

func TestBlocks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedDeparture(t, db, "dep-1", 20)

	require.NoError(t, db.CreateBlock(ctx, &models.Block{ID: "b-1", DepartureID: "dep-1", SeatCount: 2, BlockType: models.BlockVIP, Reason: "press", CreatedBy: "ops", CreatedAt: baseTime}))

	b, err := db.GetBlock(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.BlockVIP, b.BlockType)
	assert.Equal(t, "press", b.Reason)

	list, err := db.ListBlocks(ctx, "dep-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, db.DeleteBlock(ctx, "b-1"))
	assert.ErrorIs(t, db.DeleteBlock(ctx, "b-1"), domain.ErrBlockNotFound)
	_, err = db.GetBlock(ctx, "b-1")
	assert.ErrorIs(t, err, domain.ErrBlockNotFound)
}

func TestBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedDeparture(t, db, "dep-1", 20)
	require.NoError(t, db.CreateHold(ctx, &models.Hold{ID: "h-1", DepartureID: "dep-1", SeatCount: 2, HoldType: models.HoldPaymentPending, Status: models.HoldActive, ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime, UpdatedAt: baseTime}))

	bk := &models.Booking{
		ID: "bk-1", DepartureID: "dep-1", HoldID: "h-1", SeatCount: 2, Status: models.BookingDraft,
		Customer:  models.CustomerContext{Reference: "ord-7", Name: "Ada", Channel: "web"},
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	require.NoError(t, db.CreateBooking(ctx, bk))

	byHold, err := db.GetBookingByHoldID(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", byHold.ID)
	assert.Equal(t, "Ada", byHold.Customer.Name)
	assert.Nil(t, byHold.ConfirmedAt)

	confirmed := baseTime.Add(time.Minute)
	byHold.Status = models.BookingConfirmed
	byHold.ConfirmedAt = &confirmed
	byHold.UpdatedAt = confirmed
	require.NoError(t, db.UpdateBooking(ctx, byHold))

	got, err := db.GetBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, confirmed.Equal(*got.ConfirmedAt))

	// a hold backs at most one booking
	dup := &models.Booking{ID: "bk-2", DepartureID: "dep-1", HoldID: "h-1", SeatCount: 2, Status: models.BookingDraft, CreatedAt: baseTime, UpdatedAt: baseTime}
	assert.ErrorIs(t, db.CreateBooking(ctx, dup), domain.ErrInvalidArgument)

	_, err = db.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	_, err = db.GetBookingByHoldID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestWithTx(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(txCtx context.Context) error {
			seedDepartureCtx(t, txCtx, db, "dep-commit")
			return nil
		})
		require.NoError(t, err)
		_, err = db.GetDeparture(ctx, "dep-commit")
		assert.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(txCtx context.Context) error {
			seedDepartureCtx(t, txCtx, db, "dep-rollback")
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = db.GetDeparture(ctx, "dep-rollback")
		assert.ErrorIs(t, err, domain.ErrDepartureNotFound)
	})

	t.Run("nested reuses outer", func(t *testing.T) {
		err := db.WithTx(ctx, func(outer context.Context) error {
			return db.WithTx(outer, func(inner context.Context) error {
				assert.Same(t, txFromContext(outer), txFromContext(inner))
				return nil
			})
		})
		assert.NoError(t, err)
	})
}

func seedDepartureCtx(t *testing.T, ctx context.Context, db *DB, id string) {
	t.Helper()
	require.NoError(t, db.CreateDeparture(ctx, &models.Departure{
		ID: id, ResourceID: "r", StartsAt: baseTime, EndsAt: baseTime.Add(time.Hour),
		TotalCapacity: 1, Status: models.DepartureOpen, CreatedAt: baseTime, UpdatedAt: baseTime,
	}))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "closed.db"), &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()
	assert.Error(t, db.Ping(ctx))
	assert.Error(t, db.CreateDeparture(ctx, &models.Departure{ID: "x"}))
	_, err = db.CapacityUsage(ctx, "x", baseTime)
	assert.Error(t, err)
	_, err = db.ListDepartures(ctx, baseTime, baseTime, "")
	assert.Error(t, err)
	assert.Error(t, db.WithTx(ctx, func(context.Context) error { return nil }))
}
