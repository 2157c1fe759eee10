package models

// CapacityUsage is the committed seat count per claim kind, read in one snapshot.
type CapacityUsage struct {
	Held      int `json:"held"`
	Blocked   int `json:"blocked"`
	Confirmed int `json:"confirmed"`
}

func (u CapacityUsage) Total() int {
	return u.Held + u.Blocked + u.Confirmed
}

type CapacityBreakdown struct {
	TotalCapacity  int `json:"total_capacity"`
	HeldSeats      int `json:"held_seats"`
	BlockedSeats   int `json:"blocked_seats"`
	ConfirmedSeats int `json:"confirmed_seats"`
	RemainingSeats int `json:"remaining_seats"`
}

// NewCapacityBreakdown derives remaining seats. Remaining never goes below zero,
// which only matters for departures whose capacity was edited under stale usage.
func NewCapacityBreakdown(total int, usage CapacityUsage) CapacityBreakdown {
	remaining := total - usage.Total()
	if remaining < 0 {
		remaining = 0
	}
	return CapacityBreakdown{
		TotalCapacity:  total,
		HeldSeats:      usage.Held,
		BlockedSeats:   usage.Blocked,
		ConfirmedSeats: usage.Confirmed,
		RemainingSeats: remaining,
	}
}

type Availability struct {
	DepartureID    string `json:"departure_id"`
	RequestedSeats int    `json:"requested_seats"`
	Available      bool   `json:"available"`
	RemainingSeats int    `json:"remaining_seats"`
}

type DepartureDetails struct {
	Departure *Departure        `json:"departure"`
	Capacity  CapacityBreakdown `json:"capacity"`
}

// CalendarDay is the per-date rollup across departures starting that day.
type CalendarDay struct {
	Date           string   `json:"date"`
	Departures     int      `json:"departures"`
	TotalCapacity  int      `json:"total_capacity"`
	HeldSeats      int      `json:"held_seats"`
	BlockedSeats   int      `json:"blocked_seats"`
	ConfirmedSeats int      `json:"confirmed_seats"`
	RemainingSeats int      `json:"remaining_seats"`
	DepartureIDs   []string `json:"departure_ids"`
}

func (d *CalendarDay) Add(dep *Departure, b CapacityBreakdown) {
	d.Departures++
	d.TotalCapacity += b.TotalCapacity
	d.HeldSeats += b.HeldSeats
	d.BlockedSeats += b.BlockedSeats
	d.ConfirmedSeats += b.ConfirmedSeats
	d.RemainingSeats += b.RemainingSeats
	d.DepartureIDs = append(d.DepartureIDs, dep.ID)
}
