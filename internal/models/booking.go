package models

import "time"

type BookingStatus string

const (
	BookingDraft     BookingStatus = "DRAFT"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// CanTransitionTo encodes DRAFT -> CONFIRMED|CANCELLED and CONFIRMED -> CANCELLED.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingDraft:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCancelled
	default:
		return false
	}
}

// CustomerContext is opaque caller-supplied data kept with the booking.
type CustomerContext struct {
	Reference string `json:"reference,omitempty"`
	Name      string `json:"name,omitempty"`
	Contact   string `json:"contact,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

type Booking struct {
	ID           string          `json:"id"`
	DepartureID  string          `json:"departure_id"`
	HoldID       string          `json:"hold_id,omitempty"`
	SeatCount    int             `json:"seat_count"`
	Status       BookingStatus   `json:"status"`
	Customer     CustomerContext `json:"customer"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
}
