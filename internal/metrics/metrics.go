package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seatwarden"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	holdsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_created_total",
			Help:      "Holds created by hold type.",
		},
		[]string{"hold_type"},
	)

	holdsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_rejected_total",
			Help:      "Hold requests rejected by error kind.",
		},
		[]string{"reason"},
	)

	holdsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "holds_expired_total",
		Help:      "Holds transitioned to EXPIRED.",
	})

	holdsReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "holds_released_total",
		Help:      "Holds transitioned to RELEASED.",
	})

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking state transitions by resulting status.",
		},
		[]string{"status"},
	)

	concurrencyRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "concurrency_retries_total",
		Help:      "Departure mutations retried after a version conflict.",
	})

	sweeperRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeper_runs_total",
		Help:      "Completed expiry sweeps.",
	})
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			holdsCreated,
			holdsRejected,
			holdsExpired,
			holdsReleased,
			bookings,
			concurrencyRetries,
			sweeperRuns,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncHoldCreated(holdType string) {
	holdsCreated.WithLabelValues(holdType).Inc()
}

func IncHoldRejected(reason string) {
	holdsRejected.WithLabelValues(reason).Inc()
}

func AddHoldsExpired(n int) {
	if n > 0 {
		holdsExpired.Add(float64(n))
	}
}

func AddHoldsReleased(n int) {
	if n > 0 {
		holdsReleased.Add(float64(n))
	}
}

func IncBooking(status string) {
	bookings.WithLabelValues(status).Inc()
}

func IncConcurrencyRetry() {
	concurrencyRetries.Inc()
}

func IncSweeperRun() {
	sweeperRuns.Inc()
}
