package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seatwarden/internal/config"
	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/metrics"
	"seatwarden/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

type HoldService struct {
	coord     *Coordinator
	ttl       config.HoldTTLConfig
	batchSize int
	eventBus  domain.EventPublisher
	logger    *zerolog.Logger
}

var _ domain.HoldService = (*HoldService)(nil)

func NewHoldService(coord *Coordinator, ttl config.HoldTTLConfig, batchSize int, eventBus domain.EventPublisher, logger *zerolog.Logger) *HoldService {
	if ttl.Cart <= 0 {
		ttl.Cart = models.DefaultCartTTL
	}
	if ttl.PaymentPending <= 0 {
		ttl.PaymentPending = models.DefaultPaymentPendingTTL
	}
	if ttl.ApprovalPending <= 0 {
		ttl.ApprovalPending = models.DefaultApprovalPendingTTL
	}
	if batchSize <= 0 {
		batchSize = models.DefaultSweepBatchSize
	}
	return &HoldService{
		coord:     coord,
		ttl:       ttl,
		batchSize: batchSize,
		eventBus:  eventBus,
		logger:    logger,
	}
}

func (s *HoldService) CreateHold(ctx context.Context, in domain.CreateHoldInput) (hold *models.Hold, err error) {
	ctx, span := startSpan(ctx, "hold.create",
		attribute.String("departure_id", in.DepartureID), attribute.Int("seat_count", in.SeatCount))
	defer func() { endSpan(span, err) }()

	if in.HoldType == "" {
		in.HoldType = models.HoldCart
	}
	if err := validateHoldRequest(in.SeatCount, in.HoldType); err != nil {
		return nil, err
	}

	var out outbox
	err = s.coord.Mutate(ctx, in.DepartureID, func(ctx context.Context, dep *models.Departure, now time.Time) error {
		out.reset()
		h, err := s.reserve(ctx, dep, in.SeatCount, in.HoldType, now, &out)
		if err != nil {
			return err
		}
		hold = h
		return nil
	})
	if err != nil {
		s.rejected(in.DepartureID, in.SeatCount, err)
		return nil, err
	}

	out.flush(s.eventBus, s.logger)
	s.logger.Info().
		Str("hold_id", hold.ID).
		Str("departure_id", hold.DepartureID).
		Int("seat_count", hold.SeatCount).
		Str("hold_type", string(hold.HoldType)).
		Time("expires_at", hold.ExpiresAt).
		Msg("hold created")
	return hold, nil
}

// reserve is the atomic check-and-insert. It must run inside Coordinator.Mutate
// for dep.
func (s *HoldService) reserve(ctx context.Context, dep *models.Departure, seats int, holdType models.HoldType, now time.Time, out *outbox) (*models.Hold, error) {
	if !dep.AcceptsHolds() {
		return nil, fmt.Errorf("%w: departure %s is %s", domain.ErrDepartureClosed, dep.ID, dep.Status)
	}
	if err := s.coord.ensureCapacity(ctx, dep, seats, now); err != nil {
		return nil, err
	}

	h := &models.Hold{
		ID:          uuid.NewString(),
		DepartureID: dep.ID,
		SeatCount:   seats,
		HoldType:    holdType,
		Status:      models.HoldActive,
		ExpiresAt:   now.Add(s.ttl.For(holdType)),
		CreatedBy:   domain.ActorLabel(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.coord.Store().CreateHold(ctx, h); err != nil {
		return nil, err
	}
	out.onCommit(func() { metrics.IncHoldCreated(string(holdType)) })
	out.add(events.EventHoldCreated, holdPayload(ctx, h))
	return h, nil
}

// ExtendHold re-types an ACTIVE hold and restarts its TTL from now. A hold
// found past its expiry is expired on the spot and ErrHoldExpired returned.
func (s *HoldService) ExtendHold(ctx context.Context, holdID string, newType models.HoldType) (hold *models.Hold, err error) {
	ctx, span := startSpan(ctx, "hold.extend", attribute.String("hold_id", holdID), attribute.String("hold_type", string(newType)))
	defer func() { endSpan(span, err) }()

	if !newType.Valid() {
		return nil, fmt.Errorf("%w: unknown hold type %q", domain.ErrInvalidArgument, newType)
	}
	current, err := s.coord.Store().GetHold(ctx, holdID)
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
		h, err := s.coord.Store().GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if h.Status != models.HoldActive {
			return fmt.Errorf("%w: hold %s is %s", domain.ErrHoldNotActive, h.ID, h.Status)
		}
		if h.ExpiredAt(now) {
			outcome = fmt.Errorf("%w: hold %s expired at %s", domain.ErrHoldExpired, h.ID, h.ExpiresAt.Format(time.RFC3339))
			return s.coord.retireHold(ctx, h, models.HoldExpired, models.CancelReasonHoldExpired, now, &out)
		}

		h.HoldType = newType
		h.ExpiresAt = now.Add(s.ttl.For(newType))
		h.UpdatedAt = now
		if err := s.coord.Store().UpdateHold(ctx, h); err != nil {
			return err
		}
		out.add(events.EventHoldExtended, holdPayload(ctx, h))
		hold = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.flush(s.eventBus, s.logger)
	if outcome != nil {
		return nil, outcome
	}

	s.logger.Info().Str("hold_id", hold.ID).Str("hold_type", string(hold.HoldType)).Time("expires_at", hold.ExpiresAt).Msg("hold extended")
	return hold, nil
}

// ReleaseHold frees an ACTIVE hold. Releasing a RELEASED or EXPIRED hold is a
// no-op; a CONSUMED hold belongs to a confirmed booking and cannot be released.
func (s *HoldService) ReleaseHold(ctx context.Context, holdID string) (err error) {
	ctx, span := startSpan(ctx, "hold.release", attribute.String("hold_id", holdID))
	defer func() { endSpan(span, err) }()

	current, err := s.coord.Store().GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	if current.Status == models.HoldReleased || current.Status == models.HoldExpired {
		return nil
	}

	var out outbox
	err = s.coord.Mutate(ctx, current.DepartureID, func(ctx context.Context, _ *models.Departure, now time.Time) error {
		out.reset()
		h, err := s.coord.Store().GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		switch h.Status {
		case models.HoldReleased, models.HoldExpired:
			return nil
		case models.HoldConsumed:
			return fmt.Errorf("%w: hold %s is consumed by a confirmed booking", domain.ErrHoldNotActive, h.ID)
		}
		if h.ExpiredAt(now) {
			return s.coord.retireHold(ctx, h, models.HoldExpired, models.CancelReasonHoldExpired, now, &out)
		}
		return s.coord.retireHold(ctx, h, models.HoldReleased, cancelReasonHoldReleased, now, &out)
	})
	if err != nil {
		return err
	}
	out.flush(s.eventBus, s.logger)
	s.logger.Info().Str("hold_id", holdID).Msg("hold released")
	return nil
}

// ListActiveHolds returns holds still claiming capacity on the departure.
func (s *HoldService) ListActiveHolds(ctx context.Context, departureID string) ([]*models.Hold, error) {
	var holds []*models.Hold
	err := s.coord.Read(ctx, departureID, func(ctx context.Context, now time.Time) error {
		if _, err := s.coord.Store().GetDeparture(ctx, departureID); err != nil {
			return err
		}
		var err error
		holds, err = s.coord.Store().ListActiveHolds(ctx, departureID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if holds == nil {
		holds = []*models.Hold{}
	}
	return holds, nil
}

// SweepExpired expires ACTIVE holds past their expiry, one departure at a time,
// for up to batchSize departures. Per-departure failures are joined and do not
// stop the sweep.
func (s *HoldService) SweepExpired(ctx context.Context) (total int, err error) {
	ctx, span := startSpan(ctx, "hold.sweep_expired")
	defer func() {
		span.SetAttributes(attribute.Int("expired", total))
		endSpan(span, err)
	}()

	departureIDs, err := s.coord.Store().DeparturesWithExpiredHolds(ctx, s.coord.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, depID := range departureIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := s.sweepDeparture(ctx, depID)
		if err != nil {
			s.logger.Error().Err(err).Str("departure_id", depID).Msg("sweep departure failed")
			errs = append(errs, fmt.Errorf("departure %s: %w", depID, err))
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

func (s *HoldService) sweepDeparture(ctx context.Context, departureID string) (int, error) {
	var (
		out     outbox
		expired int
	)
	err := s.coord.Mutate(ctx, departureID, func(ctx context.Context, _ *models.Departure, now time.Time) error {
		out.reset()
		expired = 0
		holds, err := s.coord.Store().ListExpiredHolds(ctx, departureID, now)
		if err != nil {
			return err
		}
		for _, h := range holds {
			if err := s.coord.retireHold(ctx, h, models.HoldExpired, models.CancelReasonHoldExpired, now, &out); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	out.flush(s.eventBus, s.logger)
	if expired > 0 {
		s.logger.Debug().Str("departure_id", departureID).Int("expired", expired).Msg("expired holds swept")
	}
	return expired, nil
}

func (s *HoldService) rejected(departureID string, seats int, err error) {
	kind := domain.KindOf(err)
	metrics.IncHoldRejected(string(kind))
	ev := s.logger.Info()
	if kind == domain.KindInternal || kind == domain.KindTransient {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("departure_id", departureID).Int("seat_count", seats).Str("reason", string(kind)).Msg("hold rejected")
}

func validateHoldRequest(seats int, holdType models.HoldType) error {
	if seats <= 0 {
		return fmt.Errorf("%w: seat count must be positive, got %d", domain.ErrInvalidArgument, seats)
	}
	if !holdType.Valid() {
		return fmt.Errorf("%w: unknown hold type %q", domain.ErrInvalidArgument, holdType)
	}
	return nil
}
