package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDepartureStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to DepartureStatus
		want     bool
	}{
		{DepartureOpen, DepartureClosed, true},
		{DepartureOpen, DepartureCancelled, true},
		{DepartureClosed, DepartureCancelled, true},
		{DepartureClosed, DepartureOpen, false},
		{DepartureCancelled, DepartureOpen, false},
		{DepartureCancelled, DepartureClosed, false},
		{DepartureOpen, DepartureOpen, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, DepartureClosed.Valid())
	assert.False(t, DepartureStatus("open").Valid())
	assert.True(t, (&Departure{Status: DepartureOpen}).AcceptsHolds())
	assert.False(t, (&Departure{Status: DepartureClosed}).AcceptsHolds())
}

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, BookingDraft.CanTransitionTo(BookingConfirmed))
	assert.True(t, BookingDraft.CanTransitionTo(BookingCancelled))
	assert.True(t, BookingConfirmed.CanTransitionTo(BookingCancelled))
	assert.False(t, BookingConfirmed.CanTransitionTo(BookingDraft))
	assert.False(t, BookingCancelled.CanTransitionTo(BookingConfirmed))
	assert.False(t, BookingCancelled.CanTransitionTo(BookingCancelled))
}

func TestHold_Expiry(t *testing.T) {
	expiresAt := time.Date(2026, 5, 4, 10, 15, 0, 0, time.UTC)
	h := &Hold{Status: HoldActive, ExpiresAt: expiresAt}

	assert.False(t, h.ExpiredAt(expiresAt.Add(-time.Second)))
	assert.False(t, h.ExpiredAt(expiresAt))
	assert.True(t, h.ExpiredAt(expiresAt.Add(time.Nanosecond)))

	assert.True(t, h.LiveAt(expiresAt))
	assert.False(t, h.LiveAt(expiresAt.Add(time.Nanosecond)))

	h.Status = HoldReleased
	assert.False(t, h.LiveAt(expiresAt.Add(-time.Minute)))

	assert.False(t, HoldActive.Terminal())
	for _, s := range []HoldStatus{HoldReleased, HoldExpired, HoldConsumed} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestTypeValidation(t *testing.T) {
	assert.True(t, HoldApprovalPending.Valid())
	assert.False(t, HoldType("HOLD").Valid())
	assert.True(t, BlockChannelQuota.Valid())
	assert.False(t, BlockType("").Valid())
}

func TestCapacityBreakdown(t *testing.T) {
	b := NewCapacityBreakdown(10, CapacityUsage{Held: 3, Blocked: 2, Confirmed: 1})
	assert.Equal(t, 4, b.RemainingSeats)
	assert.Equal(t, 3, b.HeldSeats)

	over := NewCapacityBreakdown(4, CapacityUsage{Held: 3, Confirmed: 3})
	assert.Equal(t, 0, over.RemainingSeats)
}

func TestCalendarDay_Add(t *testing.T) {
	day := CalendarDay{Date: "2026-06-01"}
	day.Add(&Departure{ID: "a"}, NewCapacityBreakdown(10, CapacityUsage{Held: 2}))
	day.Add(&Departure{ID: "b"}, NewCapacityBreakdown(5, CapacityUsage{Blocked: 5}))

	assert.Equal(t, 2, day.Departures)
	assert.Equal(t, 15, day.TotalCapacity)
	assert.Equal(t, 8, day.RemainingSeats)
	assert.Equal(t, []string{"a", "b"}, day.DepartureIDs)
}
