// Package metrics provides Prometheus instrumentation for the listing engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ListingsAdded counts listings created, single and batch.
	ListingsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_engine_listings_added_total",
		Help: "Total number of listings created",
	})

	// ListingsRemoved counts listings removed, single and batch.
	ListingsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_engine_listings_removed_total",
		Help: "Total number of listings removed",
	})

	// LiveTransitions counts live-in-market flips, partitioned by direction.
	LiveTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_engine_live_transitions_total",
		Help: "Exchange live status transitions",
	}, []string{"direction"})

	// BatchRejections counts batch operations rejected during validation.
	BatchRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_engine_batch_rejections_total",
		Help: "Batch listing operations rejected by pre-flight validation",
	}, []string{"op", "reason"})

	// StaleWrites counts optimistic-lock conflicts surfaced to callers.
	StaleWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_engine_stale_writes_total",
		Help: "Version-checked saves rejected at commit time",
	})

	// StocksDeleted counts stock deletions (with listing cascades).
	StocksDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_engine_stocks_deleted_total",
		Help: "Total number of stocks deleted",
	})

	// ExchangesDeleted counts exchange deletions (with listing cascades).
	ExchangesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_engine_exchanges_deleted_total",
		Help: "Total number of exchanges deleted",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listing_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listing_engine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
