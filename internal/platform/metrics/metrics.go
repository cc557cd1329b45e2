package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the snapshot pipeline and its HTTP
// surface. Each instance owns its registry so tests can create many.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
	runsTotal      *prometheus.CounterVec
	runsSkipped    prometheus.Counter
	runDuration    prometheus.Histogram
	slotResults    *prometheus.CounterVec
	fetchAttempts  *prometheus.CounterVec
	lastSuccess    prometheus.Gauge
	mirrorFailures prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camgrid_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camgrid_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camgrid_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"result"})
	runsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camgrid_runs_skipped_total",
		Help: "Scheduled triggers skipped because a run was still in progress",
	})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camgrid_run_duration_seconds",
		Help:    "Wall time of a complete pipeline run",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 120},
	})
	slotResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camgrid_slot_results_total",
		Help: "Per-slot tile outcomes",
	}, []string{"slot", "status", "kind"})
	fetchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camgrid_fetch_attempts_total",
		Help: "HTTP fetch attempts per slot, including retries",
	}, []string{"slot"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camgrid_last_success_timestamp_seconds",
		Help: "Unix time of the last successful publish",
	})
	mirrorFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camgrid_mirror_failures_total",
		Help: "Failed uploads of the published snapshot to the remote mirror",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		runsTotal,
		runsSkipped,
		runDuration,
		slotResults,
		fetchAttempts,
		lastSuccess,
		mirrorFailures,
	)

	return &Metrics{
		registry:       registry,
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
		runsTotal:      runsTotal,
		runsSkipped:    runsSkipped,
		runDuration:    runDuration,
		slotResults:    slotResults,
		fetchAttempts:  fetchAttempts,
		lastSuccess:    lastSuccess,
		mirrorFailures: mirrorFailures,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(result string, d time.Duration) {
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
}

// IncRunsSkipped counts a trigger dropped by the overlap guard.
func (m *Metrics) IncRunsSkipped() {
	m.runsSkipped.Inc()
}

// IncSlotResult counts one slot outcome. kind is empty for live tiles.
func (m *Metrics) IncSlotResult(slot int, status, kind string) {
	if kind == "" {
		kind = "none"
	}
	m.slotResults.WithLabelValues(strconv.Itoa(slot), status, kind).Inc()
}

// AddFetchAttempts adds n attempts for slot.
func (m *Metrics) AddFetchAttempts(slot, n int) {
	if n <= 0 {
		return
	}
	m.fetchAttempts.WithLabelValues(strconv.Itoa(slot)).Add(float64(n))
}

// SetLastSuccess records the time of the latest successful publish.
func (m *Metrics) SetLastSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// IncMirrorFailures counts a failed remote mirror upload.
func (m *Metrics) IncMirrorFailures() {
	m.mirrorFailures.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
