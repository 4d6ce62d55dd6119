package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotcal",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotcal",
			Name:      "bookings_created_total",
			Help:      "Bookings that completed the dual write.",
		},
	)

	bookingsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotcal",
			Name:      "bookings_cancelled_total",
			Help:      "Bookings cancelled in both systems.",
		},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotcal",
			Name:      "slot_conflicts_total",
			Help:      "Create or update attempts rejected by the conflict check.",
		},
	)

	upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotcal",
			Name:      "upstream_errors_total",
			Help:      "Failed remote scheduler calls by operation.",
		},
		[]string{"op"},
	)

	repairTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotcal",
			Name:      "repair_tasks_total",
			Help:      "Repair tasks enqueued by type.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingsCancelled,
			slotConflicts,
			upstreamErrors,
			repairTasks,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated()   { bookingsCreated.Inc() }
func IncBookingCancelled() { bookingsCancelled.Inc() }
func IncSlotConflict()     { slotConflicts.Inc() }

func IncUpstreamError(op string) {
	upstreamErrors.WithLabelValues(op).Inc()
}

func IncRepairTask(taskType string) {
	repairTasks.WithLabelValues(taskType).Inc()
}
