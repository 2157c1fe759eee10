package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/metrics"
	"seatwarden/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// BookingService runs the initiate, confirm and cancel protocol on top of holds.
type BookingService struct {
	coord    *Coordinator
	holds    *HoldService
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

var _ domain.BookingService = (*BookingService)(nil)

func NewBookingService(coord *Coordinator, holds *HoldService, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		coord:    coord,
		holds:    holds,
		eventBus: eventBus,
		logger:   logger,
	}
}

// InitiateBooking reserves a CART hold and creates the DRAFT booking in the same
// transaction.
func (s *BookingService) InitiateBooking(ctx context.Context, in domain.InitiateBookingInput) (res domain.InitiateBookingResult, err error) {
	ctx, span := startSpan(ctx, "booking.initiate",
		attribute.String("departure_id", in.DepartureID), attribute.Int("seat_count", in.SeatCount))
	defer func() { endSpan(span, err) }()

	if err := validateHoldRequest(in.SeatCount, models.HoldCart); err != nil {
		return res, err
	}

	var (
		out     outbox
		booking *models.Booking
		hold    *models.Hold
	)
	err = s.coord.Mutate(ctx, in.DepartureID, func(ctx context.Context, dep *models.Departure, now time.Time) error {
		out.reset()
		h, err := s.holds.reserve(ctx, dep, in.SeatCount, models.HoldCart, now, &out)
		if err != nil {
			return err
		}
		b := &models.Booking{
			ID:          uuid.NewString(),
			DepartureID: dep.ID,
			HoldID:      h.ID,
			SeatCount:   in.SeatCount,
			Status:      models.BookingDraft,
			Customer:    in.Customer,
			CreatedBy:   domain.ActorLabel(ctx),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.coord.Store().CreateBooking(ctx, b); err != nil {
			return err
		}
		out.onCommit(func() { metrics.IncBooking(string(models.BookingDraft)) })
		out.add(events.EventBookingInitiated, bookingPayload(ctx, b))
		hold, booking = h, b
		return nil
	})
	if err != nil {
		s.holds.rejected(in.DepartureID, in.SeatCount, err)
		return res, err
	}

	out.flush(s.eventBus, s.logger)
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("hold_id", hold.ID).
		Str("departure_id", booking.DepartureID).
		Int("seat_count", booking.SeatCount).
		Msg("booking initiated")

	return domain.InitiateBookingResult{
		BookingID: booking.ID,
		HoldID:    hold.ID,
		ExpiresAt: hold.ExpiresAt,
	}, nil
}

// ConfirmBooking consumes the hold and confirms the booking. The expiry check
// and both writes share one critical section, so a hold is never confirmed
// and expired at once. When the hold has lapsed, the hold is expired, the
// booking cancelled, and ErrHoldExpired returned.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID, holdID string) (booking *models.Booking, err error) {
	ctx, span := startSpan(ctx, "booking.confirm", attribute.String("booking_id", bookingID), attribute.String("hold_id", holdID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(holdID) == "" {
		return nil, fmt.Errorf("%w: hold_id is required", domain.ErrInvalidArgument)
	}
	current, err := s.coord.Store().GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var (
		out     outbox
		outcome error
	)
	err = s.coord.Mutate(ctx, current.DepartureID, func(ctx context.Context, _ *models.Departure, now time.Time) error {
		out.reset()
		outcome = nil
		b, err := s.coord.Store().GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		switch b.Status {
		case models.BookingConfirmed:
			if b.HoldID != holdID {
				return fmt.Errorf("%w: booking %s", domain.ErrHoldMismatch, b.ID)
			}
			booking = b
			return nil
		case models.BookingCancelled:
			// a booking cancelled because its hold lapsed reports the expiry
			if b.HoldID == holdID && b.CancelReason == models.CancelReasonHoldExpired {
				return fmt.Errorf("%w: booking %s was cancelled when its hold expired", domain.ErrHoldExpired, b.ID)
			}
			return fmt.Errorf("%w: booking %s is cancelled", domain.ErrInvalidStateTransition, b.ID)
		}
		if b.HoldID != holdID {
			return fmt.Errorf("%w: booking %s", domain.ErrHoldMismatch, b.ID)
		}

		h, err := s.coord.Store().GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if !h.LiveAt(now) {
			outcome = fmt.Errorf("%w: hold %s is %s, expires_at %s", domain.ErrHoldExpired, h.ID, h.Status, h.ExpiresAt.Format(time.RFC3339))
			if h.Status == models.HoldActive {
				// retiring the hold cancels this DRAFT booking
				return s.coord.retireHold(ctx, h, models.HoldExpired, models.CancelReasonHoldExpired, now, &out)
			}
			return s.coord.cancelBookingRecord(ctx, b, models.CancelReasonHoldExpired, now, &out)
		}

		h.Status = models.HoldConsumed
		h.UpdatedAt = now
		if err := s.coord.Store().UpdateHold(ctx, h); err != nil {
			return err
		}

		b.Status = models.BookingConfirmed
		b.ConfirmedAt = &now
		b.UpdatedAt = now
		if err := s.coord.Store().UpdateBooking(ctx, b); err != nil {
			return err
		}
		out.onCommit(func() { metrics.IncBooking(string(models.BookingConfirmed)) })
		out.add(events.EventBookingConfirmed, bookingPayload(ctx, b))
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.flush(s.eventBus, s.logger)
	if outcome != nil {
		s.logger.Info().Str("booking_id", bookingID).Str("hold_id", holdID).Msg("confirm rejected, hold expired")
		return nil, outcome
	}
	s.logger.Info().Str("booking_id", booking.ID).Str("departure_id", booking.DepartureID).Msg("booking confirmed")
	return booking, nil
}

// CancelBooking withdraws a DRAFT or CONFIRMED booking and returns its seats.
// Cancelling a cancelled booking is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, reason string) (booking *models.Booking, err error) {
	ctx, span := startSpan(ctx, "booking.cancel", attribute.String("booking_id", bookingID))
	defer func() { endSpan(span, err) }()

	current, err := s.coord.Store().GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingCancelled {
		return current, nil
	}

	var out outbox
	err = s.coord.Mutate(ctx, current.DepartureID, func(ctx context.Context, _ *models.Departure, now time.Time) error {
		out.reset()
		b, err := s.coord.Store().GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == models.BookingCancelled {
			booking = b
			return nil
		}

		if b.HoldID != "" {
			h, err := s.coord.Store().GetHold(ctx, b.HoldID)
			if err != nil {
				return err
			}
			if h.Status == models.HoldActive || h.Status == models.HoldConsumed {
				h.Status = models.HoldReleased
				h.UpdatedAt = now
				if err := s.coord.Store().UpdateHold(ctx, h); err != nil {
					return err
				}
				out.onCommit(func() { metrics.AddHoldsReleased(1) })
				out.add(events.EventHoldReleased, holdPayload(ctx, h))
			}
		}

		if err := s.coord.cancelBookingRecord(ctx, b, strings.TrimSpace(reason), now, &out); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.flush(s.eventBus, s.logger)
	s.logger.Info().Str("booking_id", booking.ID).Str("reason", booking.CancelReason).Msg("booking cancelled")
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.coord.Store().GetBooking(ctx, id)
}
