package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

type DepartureService struct {
	coord    *Coordinator
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

var _ domain.DepartureService = (*DepartureService)(nil)

func NewDepartureService(coord *Coordinator, eventBus domain.EventPublisher, logger *zerolog.Logger) *DepartureService {
	return &DepartureService{
		coord:    coord,
		eventBus: eventBus,
		logger:   logger,
	}
}

func validateDepartureInput(in domain.CreateDepartureInput) error {
	if strings.TrimSpace(in.ResourceID) == "" {
		return fmt.Errorf("%w: resource_id is required", domain.ErrInvalidArgument)
	}
	if in.TotalCapacity < 0 {
		return fmt.Errorf("%w: total capacity %d is negative", domain.ErrInvalidCapacity, in.TotalCapacity)
	}
	if in.StartsAt.IsZero() {
		return fmt.Errorf("%w: starts_at is required", domain.ErrInvalidArgument)
	}
	if !in.EndsAt.IsZero() && in.EndsAt.Before(in.StartsAt) {
		return fmt.Errorf("%w: ends_at is before starts_at", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *DepartureService) CreateDeparture(ctx context.Context, in domain.CreateDepartureInput) (dep *models.Departure, err error) {
	ctx, span := startSpan(ctx, "departure.create", attribute.String("resource_id", in.ResourceID))
	defer func() { endSpan(span, err) }()

	if err := validateDepartureInput(in); err != nil {
		return nil, err
	}

	now := s.coord.Now()
	endsAt := in.EndsAt
	if endsAt.IsZero() {
		endsAt = in.StartsAt
	}
	dep = &models.Departure{
		ID:            uuid.NewString(),
		ResourceID:    strings.TrimSpace(in.ResourceID),
		StartsAt:      in.StartsAt.UTC(),
		EndsAt:        endsAt.UTC(),
		TotalCapacity: in.TotalCapacity,
		Status:        models.DepartureOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.coord.Store().CreateDeparture(ctx, dep); err != nil {
		return nil, err
	}

	s.logger.Info().Str("departure_id", dep.ID).Str("resource_id", dep.ResourceID).Int("capacity", dep.TotalCapacity).Msg("departure created")
	s.publish(events.EventDepartureCreated, departurePayload(ctx, dep, ""))
	return dep, nil
}

// UpdateDeparture edits resource, window and capacity. Capacity cannot drop
// below the seats already committed.
func (s *DepartureService) UpdateDeparture(ctx context.Context, id string, in domain.UpdateDepartureInput) (updated *models.Departure, err error) {
	ctx, span := startSpan(ctx, "departure.update", attribute.String("departure_id", id))
	defer func() { endSpan(span, err) }()

	if err := validateDepartureInput(in); err != nil {
		return nil, err
	}

	err = s.coord.Mutate(ctx, id, func(ctx context.Context, dep *models.Departure, now time.Time) error {
		if dep.Status == models.DepartureCancelled {
			return fmt.Errorf("%w: departure %s is cancelled", domain.ErrInvalidStateTransition, dep.ID)
		}
		if in.TotalCapacity < dep.TotalCapacity {
			usage, err := s.coord.Store().CapacityUsage(ctx, dep.ID, now)
			if err != nil {
				return err
			}
			if usage.Total() > in.TotalCapacity {
				return fmt.Errorf("%w: %d seats committed, new capacity %d", domain.ErrInsufficientCapacity, usage.Total(), in.TotalCapacity)
			}
		}

		dep.ResourceID = strings.TrimSpace(in.ResourceID)
		dep.StartsAt = in.StartsAt.UTC()
		dep.EndsAt = in.StartsAt.UTC()
		if !in.EndsAt.IsZero() {
			dep.EndsAt = in.EndsAt.UTC()
		}
		dep.TotalCapacity = in.TotalCapacity
		dep.UpdatedAt = now
		if err := s.coord.Store().UpdateDeparture(ctx, dep); err != nil {
			return err
		}
		updated = dep
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("departure_id", id).Int("capacity", updated.TotalCapacity).Msg("departure updated")
	s.publish(events.EventDepartureUpdated, departurePayload(ctx, updated, ""))
	return updated, nil
}

// UpdateStatus applies a one-way lifecycle transition. Cancelling a departure
// releases its ACTIVE holds and cancels the DRAFT bookings they back.
func (s *DepartureService) UpdateStatus(ctx context.Context, id string, status models.DepartureStatus) (updated *models.Departure, err error) {
	ctx, span := startSpan(ctx, "departure.update_status",
		attribute.String("departure_id", id), attribute.String("status", string(status)))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown departure status %q", domain.ErrInvalidArgument, status)
	}

	var (
		out      outbox
		previous models.DepartureStatus
		released int
	)
	err = s.coord.Mutate(ctx, id, func(ctx context.Context, dep *models.Departure, now time.Time) error {
		out.reset()
		released = 0
		previous = dep.Status
		if !dep.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, dep.Status, status)
		}

		if status == models.DepartureCancelled {
			holds, err := s.coord.Store().ListHoldsByStatus(ctx, dep.ID, models.HoldActive)
			if err != nil {
				return err
			}
			for _, h := range holds {
				next, reason := models.HoldReleased, models.CancelReasonDepartureCancelled
				if h.ExpiredAt(now) {
					next, reason = models.HoldExpired, models.CancelReasonHoldExpired
				}
				if err := s.coord.retireHold(ctx, h, next, reason, now, &out); err != nil {
					return err
				}
				released++
			}
		}

		dep.Status = status
		dep.UpdatedAt = now
		if err := s.coord.Store().UpdateDeparture(ctx, dep); err != nil {
			return err
		}
		updated = dep
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("departure_id", id).
		Str("from", string(previous)).
		Str("to", string(status)).
		Int("holds_released", released).
		Msg("departure status changed")
	out.add(events.EventDepartureStatusChanged, departurePayload(ctx, updated, previous))
	out.flush(s.eventBus, s.logger)
	return updated, nil
}

func (s *DepartureService) GetDeparture(ctx context.Context, id string) (*models.Departure, error) {
	return s.coord.Store().GetDeparture(ctx, id)
}

func (s *DepartureService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
