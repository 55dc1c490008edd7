package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	remindersScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revia",
			Name:      "reminders_scheduled_total",
			Help:      "Count of reminders scheduled by source.",
		},
		[]string{"source"},
	)

	remindersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revia",
			Name:      "reminders_fired_total",
			Help:      "Count of reminder firings by result.",
		},
		[]string{"result"},
	)

	remindersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "revia",
			Name:      "reminders_cancelled_total",
			Help:      "Count of reminders cancelled before firing.",
		},
	)

	remindersPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "revia",
			Name:      "reminders_pending",
			Help:      "Current number of armed reminders.",
		},
	)

	notificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revia",
			Name:      "notifications_dispatched_total",
			Help:      "Count of notification dispatch attempts by result.",
		},
		[]string{"result"},
	)

	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "revia",
			Name:      "notification_dispatch_duration_seconds",
			Help:      "Time to emit one notification.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
		},
	)

	permissionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revia",
			Name:      "permission_requests_total",
			Help:      "Count of permission requests by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "revia",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			remindersScheduled, remindersFired, remindersCancelled,
			remindersPending, notificationsDispatched, dispatchDuration,
			permissionRequests, httpRequests,
		)
	})
}

func IncScheduled(source string) {
	remindersScheduled.WithLabelValues(source).Inc()
}

func IncFired(result string) {
	remindersFired.WithLabelValues(result).Inc()
}

func IncCancelled(n int) {
	remindersCancelled.Add(float64(n))
}

func SetPending(n int) {
	remindersPending.Set(float64(n))
}

func IncDispatched(result string) {
	notificationsDispatched.WithLabelValues(result).Inc()
}

func ObserveDispatchDuration(seconds float64) {
	dispatchDuration.Observe(seconds)
}

func IncPermissionRequest(outcome string) {
	permissionRequests.WithLabelValues(outcome).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
