package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	holdsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtflow",
			Name:      "holds_created_total",
			Help:      "Slot holds acquired.",
		},
	)

	holdConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtflow",
			Name:      "hold_conflicts_total",
			Help:      "Hold or confirm attempts rejected with a conflict.",
		},
	)

	holdsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtflow",
			Name:      "holds_expired_total",
			Help:      "Holds that ran out locally before confirmation.",
		},
	)

	bookingsConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtflow",
			Name:      "bookings_confirmed_total",
			Help:      "Holds converted into confirmed bookings.",
		},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtflow",
			Name:      "payments_total",
			Help:      "Payment attempts by stage and result.",
		},
		[]string{"stage", "result"},
	)

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtflow",
			Name:      "backend_requests_total",
			Help:      "Booking backend requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(holdsCreated, holdConflicts, holdsExpired,
			bookingsConfirmed, payments, backendRequests)
	})
}

func IncHoldCreated()  { holdsCreated.Inc() }
func IncHoldConflict() { holdConflicts.Inc() }
func IncHoldExpired()  { holdsExpired.Inc() }

func IncBookingConfirmed() { bookingsConfirmed.Inc() }

// IncPayment counts one payment attempt at a stage ("intent",
// "processor", "backend") with a result ("ok", "declined", "error").
func IncPayment(stage, result string) {
	payments.WithLabelValues(stage, result).Inc()
}

// IncBackendRequest counts one request to the booking backend.
func IncBackendRequest(endpoint string) {
	backendRequests.WithLabelValues(endpoint).Inc()
}
