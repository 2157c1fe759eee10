package domain

import (
	"context"
	"io"
	"time"

	"seatwarden/internal/models"
)

// Store is the persistence contract. Methods called with a context produced by
// WithTx run inside that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error

	CreateDeparture(ctx context.Context, dep *models.Departure) error
	GetDeparture(ctx context.Context, id string) (*models.Departure, error)
	UpdateDeparture(ctx context.Context, dep *models.Departure) error
	BumpDepartureVersion(ctx context.Context, id string, expected int64, now time.Time) (int64, error)
	ListDepartures(ctx context.Context, from, to time.Time, resourceID string) ([]*models.Departure, error)
	CapacityUsage(ctx context.Context, departureID string, now time.Time) (models.CapacityUsage, error)

	CreateHold(ctx context.Context, hold *models.Hold) error
	GetHold(ctx context.Context, id string) (*models.Hold, error)
	UpdateHold(ctx context.Context, hold *models.Hold) error
	ListActiveHolds(ctx context.Context, departureID string, now time.Time) ([]*models.Hold, error)
	ListHoldsByStatus(ctx context.Context, departureID string, status models.HoldStatus) ([]*models.Hold, error)
	ListExpiredHolds(ctx context.Context, departureID string, now time.Time) ([]*models.Hold, error)
	DeparturesWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]string, error)

	CreateBlock(ctx context.Context, block *models.Block) error
	GetBlock(ctx context.Context, id string) (*models.Block, error)
	DeleteBlock(ctx context.Context, id string) error
	ListBlocks(ctx context.Context, departureID string) ([]*models.Block, error)

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByHoldID(ctx context.Context, holdID string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, booking *models.Booking) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationQueue receives serialized events for out-of-process delivery.
type NotificationQueue interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) ([]byte, error)
	Len(ctx context.Context) (int64, error)
}

type CreateDepartureInput struct {
	ResourceID    string    `json:"resource_id"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	TotalCapacity int       `json:"total_capacity"`
}

type UpdateDepartureInput = CreateDepartureInput

type BlockSeatsInput struct {
	DepartureID string           `json:"departure_id"`
	SeatCount   int              `json:"seat_count"`
	BlockType   models.BlockType `json:"block_type"`
	Reason      string           `json:"reason,omitempty"`
}

type CreateHoldInput struct {
	DepartureID string          `json:"departure_id"`
	SeatCount   int             `json:"seat_count"`
	HoldType    models.HoldType `json:"hold_type"`
}

type InitiateBookingInput struct {
	DepartureID string                 `json:"departure_id"`
	SeatCount   int                    `json:"seat_count"`
	Customer    models.CustomerContext `json:"customer"`
}

type InitiateBookingResult struct {
	BookingID string    `json:"booking_id"`
	HoldID    string    `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DepartureService interface {
	CreateDeparture(ctx context.Context, in CreateDepartureInput) (*models.Departure, error)
	UpdateDeparture(ctx context.Context, id string, in UpdateDepartureInput) (*models.Departure, error)
	UpdateStatus(ctx context.Context, id string, status models.DepartureStatus) (*models.Departure, error)
	GetDeparture(ctx context.Context, id string) (*models.Departure, error)
}

type BlockService interface {
	BlockSeats(ctx context.Context, in BlockSeatsInput) (*models.Block, error)
	RemoveBlock(ctx context.Context, blockID string) error
	ListBlocks(ctx context.Context, departureID string) ([]*models.Block, error)
}

type AvailabilityService interface {
	CheckAvailability(ctx context.Context, departureID string, requestedSeats int) (models.Availability, error)
	GetDepartureDetails(ctx context.Context, departureID string) (models.DepartureDetails, error)
	Calendar(ctx context.Context, from, to time.Time, resourceID string) ([]models.CalendarDay, error)
	ExportCalendar(ctx context.Context, w io.Writer, from, to time.Time, resourceID string) error
}

type HoldService interface {
	CreateHold(ctx context.Context, in CreateHoldInput) (*models.Hold, error)
	ExtendHold(ctx context.Context, holdID string, newType models.HoldType) (*models.Hold, error)
	ReleaseHold(ctx context.Context, holdID string) error
	ListActiveHolds(ctx context.Context, departureID string) ([]*models.Hold, error)
	SweepExpired(ctx context.Context) (int, error)
}

type BookingService interface {
	InitiateBooking(ctx context.Context, in InitiateBookingInput) (InitiateBookingResult, error)
	ConfirmBooking(ctx context.Context, bookingID, holdID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, reason string) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}
