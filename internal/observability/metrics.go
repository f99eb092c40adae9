package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	scoringResultsTotal    *prometheus.CounterVec
	contentCacheRequests   *prometheus.CounterVec
	contentGenerationTime  *prometheus.HistogramVec
	dayTransitionsTotal    *prometheus.CounterVec
	ledgerStaleWritesTotal prometheus.Counter
	progressEventsTotal    *prometheus.CounterVec
	streamClientsActive    prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readalong_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readalong_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readalong_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		scoringResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readalong_scoring_results_total",
			Help: "Scored assessments by reading level.",
		}, []string{"level"})

		contentCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readalong_content_cache_requests_total",
			Help: "Activity content lookups by outcome.",
		}, []string{"result"})

		contentGenerationTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readalong_content_generation_seconds",
			Help:    "Time spent generating and validating activity content.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"activity_type"})

		dayTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readalong_day_transitions_total",
			Help: "Plan day state transitions by target state.",
		}, []string{"to"})

		ledgerStaleWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readalong_ledger_stale_writes_total",
			Help: "Progress writes abandoned after exhausting optimistic retries.",
		})

		progressEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readalong_progress_events_total",
			Help: "Progress events delivered to local subscribers by type.",
		}, []string{"type"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "readalong_stream_clients_active",
			Help: "Connected progress stream clients.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			scoringResultsTotal, contentCacheRequests, contentGenerationTime,
			dayTransitionsTotal, ledgerStaleWritesTotal, progressEventsTotal, streamClientsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ScoringResults counts scored assessments by level.
func ScoringResults() *prometheus.CounterVec {
	RegisterMetrics()
	return scoringResultsTotal
}

// ContentCacheRequests counts content lookups by result (hit, generated, stale, fallback, pending, failed).
func ContentCacheRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return contentCacheRequests
}

// ContentGenerationDuration observes generation latency per activity type.
func ContentGenerationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return contentGenerationTime
}

// DayTransitions counts day state transitions.
func DayTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return dayTransitionsTotal
}

// LedgerStaleWrites counts writes that gave up on version conflicts.
func LedgerStaleWrites() prometheus.Counter {
	RegisterMetrics()
	return ledgerStaleWritesTotal
}

// ProgressEvents counts progress events fanned out to local subscribers.
func ProgressEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return progressEventsTotal
}

// StreamClientsActive tracks open progress stream connections.
func StreamClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}
