// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Assignment engine
	AssignmentOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_assignment_operations_total",
			Help: "Assignment operations by operation and result code",
		},
		[]string{"op", "result"},
	)

	AssignmentConflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volunteer_assignment_version_conflicts_total",
			Help: "Optimistic concurrency conflicts that forced a re-read of the event",
		},
	)

	AutoMatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volunteer_automatch_duration_seconds",
			Help:    "Time taken to rank volunteers for an event",
			Buckets: prometheus.DefBuckets,
		},
	)

	AutoMatchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volunteer_automatch_candidates",
			Help:    "Number of ranked matches returned per auto-match",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	// Domain event bus
	DomainEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_domain_events_published_total",
			Help: "Domain events published by type",
		},
		[]string{"type"},
	)

	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_side_effect_failures_total",
			Help: "Domain event handlers that failed after all retries",
		},
		[]string{"subscriber"},
	)

	SubscriberQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volunteer_subscriber_queue_depth",
			Help: "Pending domain events per subscriber",
		},
		[]string{"subscriber"},
	)

	// Notifications
	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_notifications_created_total",
			Help: "Persisted notifications by category",
		},
		[]string{"category"},
	)

	PushFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_push_failures_total",
			Help: "Failed real-time deliveries by sink",
		},
		[]string{"sink"},
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "volunteer_websocket_connections",
			Help: "Open websocket sessions",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volunteer_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(AssignmentOpsTotal)
	prometheus.MustRegister(AssignmentConflictRetries)
	prometheus.MustRegister(AutoMatchDuration)
	prometheus.MustRegister(AutoMatchCandidates)
	prometheus.MustRegister(DomainEventsPublished)
	prometheus.MustRegister(SideEffectFailures)
	prometheus.MustRegister(SubscriberQueueDepth)
	prometheus.MustRegister(NotificationsCreated)
	prometheus.MustRegister(PushFailures)
	prometheus.MustRegister(WebSocketConnections)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation for a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(h prometheus.Observer) time.Duration {
	d := time.Since(t.start)
	h.Observe(d.Seconds())
	return d
}
