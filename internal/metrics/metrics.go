// Package metrics exposes Prometheus collectors for the enrichment pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	extractionCallsTotal       *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	runCostUSD                 prometheus.Gauge
	circuitState               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call this
// function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_crawl_pages_total",
				Help: "Total number of pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_candidates_total",
				Help: "Total number of candidates processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		extractionCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_extraction_calls_total",
				Help: "Total number of extraction service calls, labeled by backend and status.",
			},
			[]string{"backend", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leads_active_workers",
				Help: "Number of workers currently processing a candidate.",
			},
		)

		runCostUSD = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leads_run_cost_usd",
				Help: "Cumulative extraction spend of the current run in USD.",
			},
		)

		circuitState = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leads_scoring_circuit_state",
				Help: "Scoring circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_http_requests_total",
				Help: "Total number of HTTP requests to the metrics server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_http_request_duration_seconds",
				Help:    "Histogram of metrics server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// ObservePage counts one page fetch.
func ObservePage(status string) {
	Init()
	crawlPagesTotal.WithLabelValues(status).Inc()
}

// ObserveCandidate counts one candidate outcome.
func ObserveCandidate(outcome string) {
	Init()
	candidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtraction counts one extraction call.
func ObserveExtraction(backend, status string) {
	Init()
	extractionCallsTotal.WithLabelValues(backend, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// SetRunCost records the cumulative spend of the current run.
func SetRunCost(usd float64) {
	Init()
	runCostUSD.Set(usd)
}

// SetCircuitState records the scoring breaker state.
func SetCircuitState(state int) {
	Init()
	circuitState.Set(float64(state))
}

// ObserveHTTPRequest records one metrics server request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latencies.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

// NewRouter builds the metrics server routes: /metrics and /healthz.
func NewRouter() chi.Router {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Method(http.MethodGet, "/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
