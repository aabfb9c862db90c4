package health

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
)

// BreakerChecker reports the state of one engine's circuit breaker.
// An open breaker only means that engine answers with fallback
// scaffolding, so the check is never critical.
type BreakerChecker struct {
	name string
	cb   *circuitbreaker.CircuitBreaker
}

func NewBreakerChecker(name string, cb *circuitbreaker.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, cb: cb}
}

func (b *BreakerChecker) Name() string           { return "engine:" + b.name }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(context.Context) CheckResult {
	state := b.cb.State()
	counts := b.cb.Counts()
	result := CheckResult{
		Details: map[string]interface{}{
			"state":                state.String(),
			"consecutive_failures": counts.ConsecutiveFailures,
			"total_failures":       counts.TotalFailures,
			"requests":             counts.Requests,
		},
	}
	switch state {
	case circuitbreaker.StateOpen:
		result.Status = StatusUnhealthy
		result.Message = "circuit open; engine answers with fallback scaffolding"
	case circuitbreaker.StateHalfOpen:
		result.Status = StatusDegraded
		result.Message = "circuit half-open; probing engine"
	default:
		result.Status = StatusHealthy
		result.Message = "circuit closed"
	}
	return result
}

// RedisProbe is the part of the Redis result cache the checker needs
type RedisProbe interface {
	Ping(ctx context.Context) error
	CircuitOpen() bool
}

// RedisHealthChecker checks the Redis result cache. Cache failures
// degrade to misses, so the check is not critical.
type RedisHealthChecker struct {
	probe   RedisProbe
	timeout time.Duration
}

func NewRedisHealthChecker(probe RedisProbe) *RedisHealthChecker {
	return &RedisHealthChecker{probe: probe, timeout: 3 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return false }
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	if r.probe.CircuitOpen() {
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open", Message: "Redis circuit breaker is open"}
	}
	start := time.Now()
	if err := r.probe.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Redis ping failed"}
	}
	latency := time.Since(start)
	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Redis healthy",
		Details: map[string]interface{}{"latency_ms": latency.Milliseconds()},
	}
	if latency > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	}
	return result
}

// TemporalHealthClient is satisfied by client.Client
type TemporalHealthClient interface {
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
}

// TemporalHealthChecker is critical: with Temporal enabled every brief
// request runs as a workflow.
type TemporalHealthChecker struct {
	client TemporalHealthClient
}

func NewTemporalHealthChecker(c TemporalHealthClient) *TemporalHealthChecker {
	return &TemporalHealthChecker{client: c}
}

func (t *TemporalHealthChecker) Name() string           { return "temporal" }
func (t *TemporalHealthChecker) IsCritical() bool       { return true }
func (t *TemporalHealthChecker) Timeout() time.Duration { return 5 * time.Second }

func (t *TemporalHealthChecker) Check(ctx context.Context) CheckResult {
	if _, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Temporal frontend unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "Temporal healthy"}
}
