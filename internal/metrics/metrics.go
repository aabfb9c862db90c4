package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Brief metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_requests_total",
			Help: "Total number of research brief requests",
		},
		[]string{"mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "briefing_request_duration_seconds",
			Help:    "End-to-end research brief duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	// Engine metrics
	EngineCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_engine_calls_total",
			Help: "Engine adapter outcomes by engine and outcome class",
		},
		[]string{"engine", "outcome"},
	)

	EngineCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "briefing_engine_call_duration_seconds",
			Help:    "Engine adapter latency in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"engine"},
	)

	EngineFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_engine_fallbacks_total",
			Help: "Engine results served from the deterministic fallback",
		},
		[]string{"engine", "reason"},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_cache_lookups_total",
			Help: "Live result cache lookups by backend and result",
		},
		[]string{"backend", "result"},
	)
)

// RecordEngineCall records the outcome of one adapter run
func RecordEngineCall(engine, outcome string, usedFallback bool, durationSeconds float64) {
	EngineCalls.WithLabelValues(engine, outcome).Inc()
	EngineCallDuration.WithLabelValues(engine).Observe(durationSeconds)
	if usedFallback {
		EngineFallbacks.WithLabelValues(engine, outcome).Inc()
	}
}

// RecordRequest records a completed brief request
func RecordRequest(mode, status string, durationSeconds float64) {
	RequestsTotal.WithLabelValues(mode, status).Inc()
	RequestDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(backend, result).Inc()
}
