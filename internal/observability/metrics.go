package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcriber_active_sessions",
		Help: "Number of active transcription sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_sessions_total",
		Help: "Total number of sessions created",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_session_duration_seconds",
		Help:    "Duration of transcription sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// Engine dispatch metrics
	engineRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_engine_requests_total",
		Help: "Total number of engine transcription requests",
	}, []string{"engine", "status"}) // status: success, timeout, error

	engineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcriber_engine_latency_seconds",
		Help:    "Engine transcription latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"engine"})

	degradedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_degraded_chunks_total",
		Help: "Chunks processed in single-engine degraded mode",
	})

	failedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_failed_chunks_total",
		Help: "Chunks that failed because no engine returned a transcript",
	})

	// Arbiter metrics
	arbiterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_arbiter_requests_total",
		Help: "Total number of arbiter consolidation requests",
	}, []string{"status"}) // status: success, timeout, malformed, error

	arbiterLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_arbiter_latency_seconds",
		Help:    "Arbiter consolidation latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	fallbackMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_fallback_merges_total",
		Help: "Consolidations resolved by the deterministic fallback merge",
	})

	// Pipeline metrics
	chunkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_chunk_latency_seconds",
		Help:    "End-to-end chunk processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	disagreements = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_chunk_disagreements",
		Help:    "Number of word disagreements per consolidated chunk",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})

	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_audio_bytes_total",
		Help: "Total audio bytes processed",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcriber_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Sink metrics
	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_publish_errors_total",
		Help: "Failed chunk event publishes",
	}, []string{"sink"}) // sink: kafka, sqlite
)

// RecordSessionStart records a new active session
func RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func RecordSessionEnd(start time.Time) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(start).Seconds())
}

// RecordEngineResult records one engine completion event
func RecordEngineResult(engine, status string, latency time.Duration) {
	engineRequests.WithLabelValues(engine, status).Inc()
	if status == "success" {
		engineLatency.WithLabelValues(engine).Observe(latency.Seconds())
	}
}

// RecordDegradedChunk records a chunk served by a single engine
func RecordDegradedChunk() {
	degradedChunks.Inc()
}

// RecordFailedChunk records a chunk with no usable engine transcript
func RecordFailedChunk() {
	failedChunks.Inc()
}

// RecordArbiterResult records an arbiter call outcome
func RecordArbiterResult(status string, latency time.Duration) {
	arbiterRequests.WithLabelValues(status).Inc()
	if status == "success" {
		arbiterLatency.Observe(latency.Seconds())
	}
}

// RecordFallbackMerge records a consolidation done by the deterministic merge
func RecordFallbackMerge() {
	fallbackMerges.Inc()
}

// RecordChunk records an end-to-end processed chunk
func RecordChunk(start time.Time, disagreementCount int) {
	chunkLatency.Observe(time.Since(start).Seconds())
	disagreements.Observe(float64(disagreementCount))
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(bytes int64) {
	audioBytesProcessed.Add(float64(bytes))
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPublishError records a failed event publish
func RecordPublishError(sink string) {
	publishErrors.WithLabelValues(sink).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
