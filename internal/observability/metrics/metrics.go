package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiongate_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visiongate_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiongate_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	analysisOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiongate_analysis_outcomes_total",
		Help: "Analysis requests by terminal state and reason",
	}, []string{"state", "reason"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visiongate_analysis_duration_seconds",
		Help:    "Time from accepted upload to shaped result",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"state"})

	inferenceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visiongate_inference_request_duration_seconds",
		Help:    "Duration of calls to the inference service",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"outcome"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "visiongate_inference_breaker_open",
		Help: "1 while the inference circuit breaker is open",
	})

	stagingCleanups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiongate_staging_cleanups_total",
		Help: "Staged file removals by source and result",
	}, []string{"source", "result"})

	archivedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiongate_archived_files_total",
		Help: "Files pushed to archive storage by result",
	}, []string{"result"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiongate_rate_limited_total",
		Help: "Requests rejected by a rate limiter",
	}, []string{"route"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt; result is success, invalid or error
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveAnalysis records a finished analysis
func ObserveAnalysis(state, reason string, duration time.Duration) {
	analysisOutcomes.WithLabelValues(state, reason).Inc()
	analysisDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// ObserveInference records one outbound inference call
func ObserveInference(outcome string, duration time.Duration) {
	inferenceLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetBreakerOpen flips the breaker gauge
func SetBreakerOpen(open bool) {
	if open {
		breakerState.Set(1)
		return
	}
	breakerState.Set(0)
}

// ObserveCleanup increments the cleanup counter for the given source and result.
func ObserveCleanup(source, result string) {
	stagingCleanups.WithLabelValues(source, result).Inc()
}

func ObserveArchive(result string) {
	archivedFiles.WithLabelValues(result).Inc()
}

func ObserveRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}
