package service

import (
	"context"
	"errors"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/metrics"
	"seatwarden/internal/models"
)

const cancelReasonHoldReleased = "hold released"

// retireHold moves an ACTIVE hold to a terminal status and cancels the DRAFT
// booking it backs, if any. Must run inside Coordinator.Mutate.
func (c *Coordinator) retireHold(ctx context.Context, h *models.Hold, status models.HoldStatus, reason string, now time.Time, out *outbox) error {
	h.Status = status
	h.UpdatedAt = now
	if err := c.store.UpdateHold(ctx, h); err != nil {
		return err
	}

	eventType := events.EventHoldReleased
	if status == models.HoldExpired {
		eventType = events.EventHoldExpired
		out.onCommit(func() { metrics.AddHoldsExpired(1) })
	} else {
		out.onCommit(func() { metrics.AddHoldsReleased(1) })
	}
	out.add(eventType, holdPayload(ctx, h))

	b, err := c.store.GetBookingByHoldID(ctx, h.ID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status != models.BookingDraft {
		return nil
	}
	return c.cancelBookingRecord(ctx, b, reason, now, out)
}

func (c *Coordinator) cancelBookingRecord(ctx context.Context, b *models.Booking, reason string, now time.Time, out *outbox) error {
	b.Status = models.BookingCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	if err := c.store.UpdateBooking(ctx, b); err != nil {
		return err
	}
	out.onCommit(func() { metrics.IncBooking(string(models.BookingCancelled)) })
	out.add(events.EventBookingCancelled, bookingPayload(ctx, b))
	return nil
}

func holdPayload(ctx context.Context, h *models.Hold) events.HoldPayload {
	return events.HoldPayload{
		HoldID:      h.ID,
		DepartureID: h.DepartureID,
		SeatCount:   h.SeatCount,
		HoldType:    string(h.HoldType),
		Status:      string(h.Status),
		ExpiresAt:   h.ExpiresAt,
		ChangedBy:   domain.ActorLabel(ctx),
	}
}

func bookingPayload(ctx context.Context, b *models.Booking) events.BookingPayload {
	return events.BookingPayload{
		BookingID:         b.ID,
		DepartureID:       b.DepartureID,
		HoldID:            b.HoldID,
		SeatCount:         b.SeatCount,
		Status:            string(b.Status),
		CustomerReference: b.Customer.Reference,
		CustomerContact:   b.Customer.Contact,
		Reason:            b.CancelReason,
		ChangedBy:         domain.ActorLabel(ctx),
	}
}

func departurePayload(ctx context.Context, d *models.Departure, previous models.DepartureStatus) events.DeparturePayload {
	return events.DeparturePayload{
		DepartureID:    d.ID,
		ResourceID:     d.ResourceID,
		Status:         string(d.Status),
		PreviousStatus: string(previous),
		TotalCapacity:  d.TotalCapacity,
		StartsAt:       d.StartsAt,
		ChangedBy:      domain.ActorLabel(ctx),
	}
}
