package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics collects Prometheus metrics for the HTTP surface and the ledgers.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	consumedMeters  *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "silaibook_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "silaibook_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "silaibook_stock_consumed_meters_total",
		Help: "Meters permanently deducted from stock lots, by material category.",
	}, []string{"category"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "silaibook_ledger_rejections_total",
		Help: "Rejected ledger operations by operation and error kind.",
	}, []string{"operation", "kind"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "silaibook_ready_notifications_total",
		Help: "Ready notifications handed to the messaging collaborator, by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(
		requests, duration, consumed, rejections, notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		consumedMeters:  consumed,
		rejections:      rejections,
		notifications:   notifications,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// ObserveConsumption counts committed stock deductions.
func (m *Metrics) ObserveConsumption(category string, meters decimal.Decimal) {
	if m == nil {
		return
	}
	if category == "" {
		category = "uncategorised"
	}
	f, _ := meters.Float64()
	m.consumedMeters.WithLabelValues(category).Add(f)
}

// ObserveRejection counts a failed ledger operation.
func (m *Metrics) ObserveRejection(operation, kind string) {
	if m == nil || kind == "" {
		return
	}
	m.rejections.WithLabelValues(operation, kind).Inc()
}

// ObserveNotification counts notification hand-offs.
func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
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
