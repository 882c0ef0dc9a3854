// Package metrics holds the Prometheus collectors and the /metrics handler.
//
// Collectors are package-level and registered once through promauto, so
// building several routers in one process (tests do) never registers a
// metric twice.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csstoy_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csstoy_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csstoy_interactions_total",
		Help: "Ledger mutations by kind (like, collect), action (add, remove) and outcome",
	}, []string{"kind", "action", "outcome"})

	eventFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csstoy_event_publish_failures_total",
		Help: "Domain events that could not be published",
	})
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route, status string, seconds float64) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// Interaction records one like/collect mutation. outcome is "ok",
// "conflict" or "error".
func Interaction(kind, action, outcome string) {
	interactions.WithLabelValues(kind, action, outcome).Inc()
}

// EventPublishFailed counts a dropped domain event.
func EventPublishFailed() {
	eventFailures.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
