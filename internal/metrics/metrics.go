package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptfinder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_uploads_total",
			Help: "Upload completions by media kind and outcome",
		},
		[]string{"kind", "result"}, // published, review, rejected, error
	)

	PresignsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_presigns_total",
			Help: "Presigned upload URLs issued",
		},
		[]string{"kind", "result"},
	)

	ModerationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_moderation_verdicts_total",
			Help: "Moderator verdicts by service and status",
		},
		[]string{"service", "status"},
	)

	ModerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptfinder_moderation_duration_seconds",
			Help:    "Time spent in a single moderator",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_storage_operations_total",
			Help: "Object store operations by kind and outcome",
		},
		[]string{"operation", "result"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_jobs_processed_total",
			Help: "Background jobs finished by type and status",
		},
		[]string{"type", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptfinder_job_duration_seconds",
			Help:    "Background job run time",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promptfinder_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfinder_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func ObserveModeration(service, status string, elapsed time.Duration) {
	ModerationVerdicts.WithLabelValues(service, status).Inc()
	ModerationDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

func ObserveJob(jobType, status string, elapsed time.Duration) {
	JobsProcessed.WithLabelValues(jobType, status).Inc()
	JobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

func StorageResult(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StorageOperations.WithLabelValues(operation, result).Inc()
}
