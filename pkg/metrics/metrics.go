package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Custom histogram buckets for auth API calls: most complete in well under
	// a second, but renewal against a struggling backend can take much longer
	CustomAPIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55}

	// Auth flow metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examgate_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"status"},
	)

	LoginDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examgate_login_duration_seconds",
			Help:    "Login call duration in seconds",
			Buckets: CustomAPIBuckets,
		},
	)

	SecondFactorVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examgate_second_factor_verifications_total",
			Help: "Total number of second-factor verification attempts",
		},
		[]string{"status"},
	)

	// Renewal scheduler metrics
	TokenRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examgate_token_renewals_total",
			Help: "Total number of token renewal attempts",
		},
		[]string{"status"},
	)

	RenewalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examgate_token_renewal_duration_seconds",
			Help:    "Token renewal call duration in seconds",
			Buckets: CustomAPIBuckets,
		},
	)

	SchedulerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examgate_scheduler_transitions_total",
			Help: "Total number of renewal scheduler state transitions",
		},
		[]string{"from", "to"},
	)

	UnauthorizedSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examgate_unauthorized_signals_total",
			Help: "Total number of unauthorized signals broadcast",
		},
	)

	SessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examgate_session_active",
			Help: "Whether an authenticated session is currently held (0 or 1)",
		},
	)

	// Stub backend HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	// Infrastructure Metrics
	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_goroutines",
			Help: "Number of goroutines",
		},
	)

	HeapAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_mem_heap_alloc_bytes",
			Help: "Heap allocated bytes",
		},
	)
)

// RecordInfrastructureMetrics collects infrastructure metrics periodically
func RecordInfrastructureMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		for range ticker.C {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			GoRoutines.Set(float64(runtime.NumGoroutine()))
			HeapAlloc.Set(float64(m.HeapAlloc))
		}
	}()
}

// MeasureDuration measures the duration of an operation
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}
