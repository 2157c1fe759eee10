package service

import (
	"context"
	"fmt"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// MaxCalendarDays bounds a single calendar request.
const MaxCalendarDays = 366

type AvailabilityService struct {
	coord  *Coordinator
	logger *zerolog.Logger
}

var _ domain.AvailabilityService = (*AvailabilityService)(nil)

func NewAvailabilityService(coord *Coordinator, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		coord:  coord,
		logger: logger,
	}
}

// CheckAvailability reports whether requestedSeats fit into the remaining capacity.
// Only the capacity formula is applied: Available ignores departure status, so a
// CLOSED or CANCELLED departure may report seats that CreateHold refuses with
// ErrDepartureClosed.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, departureID string, requestedSeats int) (av models.Availability, err error) {
	ctx, span := startSpan(ctx, "availability.check",
		attribute.String("departure_id", departureID), attribute.Int("seat_count", requestedSeats))
	defer func() { endSpan(span, err) }()

	if requestedSeats < 0 {
		return av, fmt.Errorf("%w: requested seats must not be negative", domain.ErrInvalidArgument)
	}
	details, err := s.GetDepartureDetails(ctx, departureID)
	if err != nil {
		return av, err
	}
	remaining := details.Capacity.RemainingSeats
	return models.Availability{
		DepartureID:    departureID,
		RequestedSeats: requestedSeats,
		Available:      remaining >= requestedSeats,
		RemainingSeats: remaining,
	}, nil
}

// GetDepartureDetails returns the departure with a capacity breakdown taken
// from a single snapshot.
func (s *AvailabilityService) GetDepartureDetails(ctx context.Context, departureID string) (models.DepartureDetails, error) {
	var details models.DepartureDetails
	err := s.coord.Read(ctx, departureID, func(ctx context.Context, now time.Time) error {
		dep, err := s.coord.Store().GetDeparture(ctx, departureID)
		if err != nil {
			return err
		}
		b, err := s.coord.breakdown(ctx, dep, now)
		if err != nil {
			return err
		}
		details = models.DepartureDetails{Departure: dep, Capacity: b}
		return nil
	})
	return details, err
}

// Calendar rolls up capacity per UTC start date for every day in [from, to].
func (s *AvailabilityService) Calendar(ctx context.Context, from, to time.Time, resourceID string) (days []models.CalendarDay, err error) {
	ctx, span := startSpan(ctx, "availability.calendar", attribute.String("resource_id", resourceID))
	defer func() { endSpan(span, err) }()

	days, _, err = s.calendar(ctx, from, to, resourceID)
	return days, err
}

func (s *AvailabilityService) calendar(ctx context.Context, from, to time.Time, resourceID string) ([]models.CalendarDay, []models.DepartureDetails, error) {
	start, end, err := calendarRange(from, to)
	if err != nil {
		return nil, nil, err
	}

	deps, err := s.coord.Store().ListDepartures(ctx, start, end, resourceID)
	if err != nil {
		return nil, nil, err
	}

	days := make([]models.CalendarDay, 0, int(end.Sub(start)/(24*time.Hour)))
	index := make(map[string]int)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(models.CalendarDateLayout)
		index[key] = len(days)
		days = append(days, models.CalendarDay{Date: key, DepartureIDs: []string{}})
	}

	details := make([]models.DepartureDetails, 0, len(deps))
	for _, dep := range deps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		d, err := s.GetDepartureDetails(ctx, dep.ID)
		if err != nil {
			return nil, nil, err
		}
		details = append(details, d)
		key := d.Departure.StartsAt.UTC().Format(models.CalendarDateLayout)
		if i, ok := index[key]; ok {
			days[i].Add(d.Departure, d.Capacity)
		}
	}
	return days, details, nil
}

// calendarRange normalizes to whole UTC days and returns [start, end).
func calendarRange(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from and to are required", domain.ErrInvalidArgument)
	}
	start := truncateDay(from)
	end := truncateDay(to).AddDate(0, 0, 1)
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", domain.ErrInvalidArgument)
	}
	if end.Sub(start) > MaxCalendarDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range exceeds %d days", domain.ErrInvalidArgument, MaxCalendarDays)
	}
	return start, end, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
