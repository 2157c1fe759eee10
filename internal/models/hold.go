package models

import "time"

type HoldType string

const (
	HoldCart            HoldType = "CART"
	HoldPaymentPending  HoldType = "PAYMENT_PENDING"
	HoldApprovalPending HoldType = "APPROVAL_PENDING"
)

type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldReleased HoldStatus = "RELEASED"
	HoldExpired  HoldStatus = "EXPIRED"
	HoldConsumed HoldStatus = "CONSUMED"
)

// Hold is a time-limited claim on departure capacity.
type Hold struct {
	ID          string     `json:"id"`
	DepartureID string     `json:"departure_id"`
	SeatCount   int        `json:"seat_count"`
	HoldType    HoldType   `json:"hold_type"`
	Status      HoldStatus `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t HoldType) Valid() bool {
	switch t {
	case HoldCart, HoldPaymentPending, HoldApprovalPending:
		return true
	}
	return false
}

// ExpiredAt reports logical expiry. Sweeper progress does not matter here.
func (h *Hold) ExpiredAt(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// LiveAt is true when the hold still claims capacity at now.
func (h *Hold) LiveAt(now time.Time) bool {
	return h.Status == HoldActive && !h.ExpiredAt(now)
}

// Terminal reports statuses a hold never leaves.
func (s HoldStatus) Terminal() bool {
	return s == HoldReleased || s == HoldExpired || s == HoldConsumed
}
