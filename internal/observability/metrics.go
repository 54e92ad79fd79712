package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	upstreamDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the gateway.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Action handler metrics
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Upstream metrics (BaaS, board, push dispatch)
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamBreakerState    *prometheus.GaugeVec
	UpstreamRetriesTotal    *prometheus.CounterVec

	// Import batch metrics
	ImportItemsTotal *prometheus.CounterVec

	// Host-frame reporting metrics
	FrameReportsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelfgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfgate_actions_total",
			Help: "Total number of action handler executions.",
		}, []string{"action", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelfgate_action_duration_seconds",
			Help:    "Action handler duration in seconds.",
			Buckets: upstreamDurationBuckets,
		}, []string{"action"}),

		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfgate_upstream_requests_total",
			Help: "Total number of upstream API requests.",
		}, []string{"service", "operation", "status"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelfgate_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds.",
			Buckets: upstreamDurationBuckets,
		}, []string{"service"}),
		UpstreamBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shelfgate_upstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"service"}),
		UpstreamRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfgate_upstream_retries_total",
			Help: "Total number of upstream request retries.",
		}, []string{"service"}),

		ImportItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfgate_import_items_total",
			Help: "Total board items processed by the import handler.",
		}, []string{"outcome"}),

		FrameReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfgate_frame_reports_total",
			Help: "Total host-frame error reports by delivery outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActionsTotal,
		m.ActionDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.UpstreamBreakerState,
		m.UpstreamRetriesTotal,
		m.ImportItemsTotal,
		m.FrameReportsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordAction records an action handler execution. Outcome is "success" or
// the gateway error code.
func (m *Metrics) RecordAction(action, outcome string, duration time.Duration) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordUpstreamRequest records an upstream API request.
func (m *Metrics) RecordUpstreamRequest(service, operation string, status int, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(service, operation, strconv.Itoa(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// SetUpstreamBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=open, 2=half-open.
func (m *Metrics) SetUpstreamBreakerState(service string, state float64) {
	m.UpstreamBreakerState.WithLabelValues(service).Set(state)
}

// RecordUpstreamRetry records an upstream request retry.
func (m *Metrics) RecordUpstreamRetry(service string) {
	m.UpstreamRetriesTotal.WithLabelValues(service).Inc()
}

// RecordImportItem records the outcome of one board item during an import
// batch. Outcome is "imported" or "skipped".
func (m *Metrics) RecordImportItem(outcome string) {
	m.ImportItemsTotal.WithLabelValues(outcome).Inc()
}

// RecordFrameReport records a host-frame report delivery outcome:
// "sent", "suppressed", or "failed".
func (m *Metrics) RecordFrameReport(outcome string) {
	m.FrameReportsTotal.WithLabelValues(outcome).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
