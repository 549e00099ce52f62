package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	settlementsTotal  prometheus.Counter
	settlementsFailed prometheus.Counter
	settledAmount     prometheus.Counter
	sweepDuration     prometheus.Histogram
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tesoro_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tesoro_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	settlements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tesoro_settlements_total",
		Help: "Completed maturity settlements.",
	})
	settlementFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tesoro_settlement_failures_total",
		Help: "Settlements that failed after the terminal transition.",
	})
	settledAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tesoro_settled_amount_total",
		Help: "Sum of principal plus interest credited by settlements.",
	})
	sweep := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tesoro_maturity_sweep_duration_seconds",
		Help:    "Duration of maturity sweep runs.",
		Buckets: prometheus.DefBuckets,
	})
	registry.MustRegister(requests, duration, settlements, settlementFailures, settledAmount, sweep)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		settlementsTotal:  settlements,
		settlementsFailed: settlementFailures,
		settledAmount:     settledAmount,
		sweepDuration:     sweep,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
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

// SettlementProcessed counts one settlement and the amount it credited.
func (m *Metrics) SettlementProcessed(amount float64) {
	if m == nil {
		return
	}
	m.settlementsTotal.Inc()
	m.settledAmount.Add(amount)
}

// SettlementFailed counts a settlement that left a partial state.
func (m *Metrics) SettlementFailed() {
	if m == nil {
		return
	}
	m.settlementsFailed.Inc()
}

// SweepDuration observes one sweep run.
func (m *Metrics) SweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

// Registerer exposes the registry for custom metric registration.
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
