package models

import "time"

type DepartureStatus string

const (
	DepartureOpen      DepartureStatus = "OPEN"
	DepartureClosed    DepartureStatus = "CLOSED"
	DepartureCancelled DepartureStatus = "CANCELLED"
)

// Departure is a schedulable, capacity-bounded instance of a bookable resource.
type Departure struct {
	ID            string          `json:"id"`
	ResourceID    string          `json:"resource_id"`
	StartsAt      time.Time       `json:"starts_at"`
	EndsAt        time.Time       `json:"ends_at"`
	TotalCapacity int             `json:"total_capacity"`
	Status        DepartureStatus `json:"status"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s DepartureStatus) Valid() bool {
	switch s {
	case DepartureOpen, DepartureClosed, DepartureCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the one-way lifecycle allows s -> next.
func (s DepartureStatus) CanTransitionTo(next DepartureStatus) bool {
	switch s {
	case DepartureOpen:
		return next == DepartureClosed || next == DepartureCancelled
	case DepartureClosed:
		return next == DepartureCancelled
	default:
		return false
	}
}

// AcceptsHolds is true only for OPEN departures.
func (d *Departure) AcceptsHolds() bool {
	return d.Status == DepartureOpen
}
