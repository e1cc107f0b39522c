package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes
const (
	FetchIssued     = "issued"
	FetchJoined     = "joined"
	FetchSuppressed = "suppressed"
	FetchStale      = "stale"
	FetchFailed     = "failed"
)

// Mutation outcomes
const (
	MutationConfirmed  = "confirmed"
	MutationRolledBack = "rolled_back"
	MutationRejected   = "rejected"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_api_requests_total",
			Help: "Total number of backend API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "Duration of backend API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_mutations_total",
			Help: "Optimistic mutations by collection, operation and outcome",
		},
		[]string{"collection", "op", "outcome"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rollbacks_total",
			Help: "Optimistic states discarded by a reconciling fetch",
		},
		[]string{"collection"},
	)

	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_fetches_total",
			Help: "Canonical collection fetches by outcome",
		},
		[]string{"collection", "outcome"},
	)

	SessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_session_events_total",
			Help: "Session lifecycle events",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDurationSeconds,
		MutationsTotal,
		RollbacksTotal,
		FetchesTotal,
		SessionEventsTotal,
	)
}

// ObserveAPIRequest records metrics for a backend API call
func ObserveAPIRequest(method, route, status string, startedAt time.Time) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDurationSeconds.WithLabelValues(method, route, status).Observe(time.Since(startedAt).Seconds())
}

// ObserveMutation records the outcome of an optimistic mutation
func ObserveMutation(collection, op, outcome string) {
	MutationsTotal.WithLabelValues(collection, op, outcome).Inc()
	if outcome == MutationRolledBack {
		RollbacksTotal.WithLabelValues(collection).Inc()
	}
}

// ObserveFetch records a canonical fetch decision
func ObserveFetch(collection, outcome string) {
	FetchesTotal.WithLabelValues(collection, outcome).Inc()
}

// ObserveSessionEvent records login/logout/invalidated events
func ObserveSessionEvent(event string) {
	SessionEventsTotal.WithLabelValues(event).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
