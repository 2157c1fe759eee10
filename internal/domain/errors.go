package domain

import "errors"

var (
	ErrDepartureNotFound = errors.New("departure not found")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBlockNotFound     = errors.New("block not found")

	ErrInvalidCapacity        = errors.New("invalid capacity")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrHoldMismatch           = errors.New("hold does not belong to booking")

	ErrDepartureClosed      = errors.New("departure is not open for new holds")
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	ErrHoldExpired   = errors.New("hold expired")
	ErrHoldNotActive = errors.New("hold is not active")

	// ErrConcurrentModification signals a lost optimistic version check. It is
	// retried internally and surfaces to callers as ErrTryAgain.
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrTryAgain               = errors.New("temporary conflict, try again")
)

// Kind is the machine-readable error class returned to API callers.
type Kind string

const (
	KindNone                   Kind = ""
	KindNotFound               Kind = "not_found"
	KindInvalidCapacity        Kind = "invalid_capacity"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindInvalidArgument        Kind = "invalid_argument"
	KindDepartureClosed        Kind = "departure_closed"
	KindInsufficientCapacity   Kind = "insufficient_capacity"
	KindHoldExpired            Kind = "hold_expired"
	KindHoldNotActive          Kind = "hold_not_active"
	KindTransient              Kind = "transient"
	KindInternal               Kind = "internal"
)

// KindOf classifies err, following wrapped chains.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsNotFoundError(err):
		return KindNotFound
	case errors.Is(err, ErrInvalidCapacity):
		return KindInvalidCapacity
	case errors.Is(err, ErrInvalidStateTransition):
		return KindInvalidStateTransition
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrHoldMismatch):
		return KindInvalidArgument
	case errors.Is(err, ErrDepartureClosed):
		return KindDepartureClosed
	case errors.Is(err, ErrInsufficientCapacity):
		return KindInsufficientCapacity
	case errors.Is(err, ErrHoldExpired):
		return KindHoldExpired
	case errors.Is(err, ErrHoldNotActive):
		return KindHoldNotActive
	case errors.Is(err, ErrTryAgain), errors.Is(err, ErrConcurrentModification):
		return KindTransient
	default:
		return KindInternal
	}
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrDepartureNotFound) ||
		errors.Is(err, ErrHoldNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrBlockNotFound)
}

// IsDomainError is true for errors that are safe to show to end users verbatim.
func IsDomainError(err error) bool {
	k := KindOf(err)
	return k != KindNone && k != KindInternal
}
