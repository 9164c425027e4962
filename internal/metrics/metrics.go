// Package metrics exposes Prometheus collectors for the scout service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scoutJobsTotal             *prometheus.CounterVec
	scoutRowsCollectedTotal    *prometheus.CounterVec
	scoutDirectionsCallsTotal  *prometheus.CounterVec
	scoutActiveWorkers         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scoutScrapeDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scoutJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_jobs_total",
				Help: "Total number of jobs processed, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		scoutRowsCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_rows_collected_total",
				Help: "Total number of data rows collected, labeled by kind.",
			},
			[]string{"kind"},
		)

		scoutDirectionsCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_directions_calls_total",
				Help: "Total routing API calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scoutActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scout_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		scoutScrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_scrape_duration_seconds",
				Help:    "Histogram of scrape durations, labeled by kind.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given kind and status.
func ObserveJob(kind, status string) {
	scoutJobsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRows adds collected rows for the given kind.
func ObserveRows(kind string, rows int) {
	if rows > 0 {
		scoutRowsCollectedTotal.WithLabelValues(kind).Add(float64(rows))
	}
}

// ObserveDirectionsCall increments the routing call counter.
func ObserveDirectionsCall(outcome string) {
	scoutDirectionsCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrapeDuration records how long a scrape took.
func ObserveScrapeDuration(kind string, duration time.Duration) {
	scoutScrapeDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	scoutActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	scoutActiveWorkers.Dec()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
