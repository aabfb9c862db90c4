package circuitbreaker

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "briefing_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	circuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	circuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_circuit_breaker_state_changes_total",
			Help: "Total number of state changes in circuit breaker",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)

	circuitBreakerOpenSince = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "briefing_circuit_breaker_open_since_seconds",
			Help: "Timestamp when the circuit breaker entered open state (0 if not open)",
		},
		[]string{"name", "service"},
	)
)

// MetricsCollector tracks registered breakers and exports their state
type MetricsCollector struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{breakers: make(map[string]*CircuitBreaker)}
}

// RegisterCircuitBreaker registers cb and chains a metrics hook onto its
// state change callback. Must be called before cb is shared.
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.breakers[service+":"+name] = cb

	prev := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from State, to State) {
		if prev != nil {
			prev(cbName, from, to)
		}
		circuitBreakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		circuitBreakerState.WithLabelValues(name, service).Set(float64(to))
		if to == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name, service).SetToCurrentTime()
		} else if from == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name, service).Set(0)
		}
	}
}

// Breakers returns the registered breakers keyed by "service:name"
func (mc *MetricsCollector) Breakers() map[string]*CircuitBreaker {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	out := make(map[string]*CircuitBreaker, len(mc.breakers))
	for k, v := range mc.breakers {
		out[k] = v
	}
	return out
}

// RecordRequest records a request attempt
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	circuitBreakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

// UpdateMetrics refreshes the state gauge of every registered breaker
func (mc *MetricsCollector) UpdateMetrics() {
	for key, cb := range mc.Breakers() {
		service, name, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		circuitBreakerState.WithLabelValues(name, service).Set(float64(cb.State()))
	}
}

// GlobalMetricsCollector is shared by every wrapper in the process
var GlobalMetricsCollector = NewMetricsCollector()

// StartMetricsCollection refreshes breaker gauges every 10s until done is closed.
func StartMetricsCollection(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				GlobalMetricsCollector.UpdateMetrics()
			}
		}
	}()
}
