package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-wide metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Session lifecycle metrics. The "reason" label carries the internal failure
// class (bad_signature, expired, wrong_scope, revoked, stale_refresh,
// bad_credentials); clients only ever see an undifferentiated 401.
var (
	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Completed auth operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	authFailureReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Auth failures by internal reason.",
		},
		[]string{"op", "reason"},
	)

	tokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_revoked_total",
		Help: "Access tokens added to the revocation blacklist.",
	})
)

// Init registers all service metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authOperations, authFailureReasons, tokensRevoked,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthOperation records the outcome ("ok" or "fail") of a session operation.
func AuthOperation(op, outcome string) {
	authOperations.WithLabelValues(op, outcome).Inc()
}

// AuthFailure records the internal failure reason for a session operation.
func AuthFailure(op, reason string) {
	authFailureReasons.WithLabelValues(op, reason).Inc()
}

// TokenRevoked counts a blacklist insertion.
func TokenRevoked() {
	tokensRevoked.Inc()
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "photos":
		parts[2] = ":id"
		if len(parts) > 4 {
			return path
		}
	case len(parts) == 3 && parts[0] == "v1" && (parts[1] == "ratings" || parts[1] == "comments" || parts[1] == "users"):
		if parts[2] != "me" {
			parts[2] = ":id"
		}
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "users" && parts[3] == "role":
		parts[2] = ":id"
	default:
		return path
	}
	return "/" + strings.Join(parts, "/")
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
