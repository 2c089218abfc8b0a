package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requestsTotal  *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec

	registrationsTotal      *prometheus.CounterVec
	uploadsTotal            *prometheus.CounterVec
	uploadLatencySeconds    *prometheus.HistogramVec
	attemptStartsTotal      *prometheus.CounterVec
	quizSubmitsTotal        *prometheus.CounterVec
	quizTimersActive        prometheus.Gauge
	refreshOutcomesTotal    *prometheus.CounterVec
	lifecycleEventsTotal    *prometheus.CounterVec
	scorePresentationsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the gateway.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of gateway API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "Latency distribution for gateway API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total number of error responses returned by the gateway.",
		}, []string{"method", "route", "status"})

		registrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_registrations_total",
			Help: "Submission registrations by outcome.",
		}, []string{"outcome"})

		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_uploads_total",
			Help: "Payload uploads by outcome.",
		}, []string{"outcome"})

		uploadLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "submission_upload_latency_seconds",
			Help:    "End to end latency of the register, upload and complete sequence.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"assignment_type"})

		attemptStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attempt_starts_total",
			Help: "Quiz attempt starts by outcome.",
		}, []string{"outcome"})

		quizSubmitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_submits_total",
			Help: "Quiz submissions by trigger and outcome.",
		}, []string{"reason", "outcome"})

		quizTimersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_timers_active",
			Help: "Number of quiz countdowns currently running.",
		})

		refreshOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_refreshes_total",
			Help: "Read-after-write refreshes by outcome.",
		}, []string{"outcome"})

		lifecycleEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_events_total",
			Help: "Lifecycle journal entries by action.",
		}, []string{"action"})

		scorePresentationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "score_presentations_total",
			Help: "Scores presented to learners by origin.",
		}, []string{"origin"})

		prometheus.MustRegister(
			requestsTotal, latencySeconds, errorsTotal,
			registrationsTotal, uploadsTotal, uploadLatencySeconds,
			attemptStartsTotal, quizSubmitsTotal, quizTimersActive,
			refreshOutcomesTotal, lifecycleEventsTotal, scorePresentationsTotal,
		)
	})
}

// Requests exposes the counter for gateway requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for gateway requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for gateway error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

func Registrations() *prometheus.CounterVec {
	RegisterMetrics()
	return registrationsTotal
}

func Uploads() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsTotal
}

// UploadLatency tracks the full two-phase submit.
func UploadLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return uploadLatencySeconds
}

func AttemptStarts() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptStartsTotal
}

func QuizSubmits() *prometheus.CounterVec {
	RegisterMetrics()
	return quizSubmitsTotal
}

func QuizTimersActive() prometheus.Gauge {
	RegisterMetrics()
	return quizTimersActive
}

func RefreshOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return refreshOutcomesTotal
}

func LifecycleEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return lifecycleEventsTotal
}

func ScorePresentations() *prometheus.CounterVec {
	RegisterMetrics()
	return scorePresentationsTotal
}
