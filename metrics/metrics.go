package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interventions_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interventions_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interventions_transitions_total",
		Help: "Count of applied intervention lifecycle transitions",
	}, []string{"transition"})

	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interventions_login_attempts_total",
		Help: "Count of login attempts by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveTransition counts one applied lifecycle transition (create, assign, start, complete, cancel, notes, photo)
func ObserveTransition(transition string) {
	transitionsTotal.WithLabelValues(transition).Inc()
}

// ObserveLogin counts a login attempt; result is "success" or "failure"
func ObserveLogin(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}
