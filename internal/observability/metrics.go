// Package observability exposes Prometheus metrics for the console, the backend client and
// the bulk worker.
package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	loadsTotal      *prometheus.CounterVec
	supersededTotal *prometheus.CounterVec
	bulkItemsTotal  *prometheus.CounterVec
	activeViews     prometheus.Gauge
}

// NewMetrics builds a private registry with every metric registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitydesk_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facilitydesk_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitydesk_backend_requests_total",
			Help: "Backend requests by resource and outcome.",
		}, []string{"resource", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facilitydesk_backend_request_duration_seconds",
			Help:    "Backend request duration by resource.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"resource"}),
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitydesk_list_loads_total",
			Help: "Completed list page loads by resource and result.",
		}, []string{"resource", "result"}),
		supersededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitydesk_list_loads_superseded_total",
			Help: "List loads discarded because a newer load replaced them.",
		}, []string{"resource"}),
		bulkItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitydesk_bulk_items_total",
			Help: "Bulk action items processed by action and outcome.",
		}, []string{"action", "outcome"}),
		activeViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facilitydesk_active_views",
			Help: "List views currently mounted in console sessions.",
		}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.fetchTotal, m.fetchDuration,
		m.loadsTotal, m.supersededTotal,
		m.bulkItemsTotal, m.activeViews,
		prometheus.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveFetch implements backend.Recorder.
func (m *Metrics) ObserveFetch(resource, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(resource, outcome).Inc()
	m.fetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// LoadCompleted implements listing.Observer.
func (m *Metrics) LoadCompleted(resource string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, listing.ErrFetch) {
			result = "fetch_error"
		}
	}
	m.loadsTotal.WithLabelValues(resource, result).Inc()
}

// LoadSuperseded implements listing.Observer.
func (m *Metrics) LoadSuperseded(resource string) {
	if m == nil {
		return
	}
	m.supersededTotal.WithLabelValues(resource).Inc()
}

// BulkItems implements bulk.Metrics.
func (m *Metrics) BulkItems(action, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bulkItemsTotal.WithLabelValues(action, outcome).Add(float64(n))
}

// SetActiveViews reports the number of mounted views.
func (m *Metrics) SetActiveViews(n int) {
	if m == nil {
		return
	}
	m.activeViews.Set(float64(n))
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
