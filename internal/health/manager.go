package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand and in the background
type Manager struct {
	checkers      map[string]Checker
	lastResults   map[string]CheckResult
	listeners     []func(OverallHealth)
	checkInterval time.Duration
	started       bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewManager creates a health manager that re-checks every 30s once started
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkers:      make(map[string]Checker),
		lastResults:   make(map[string]CheckResult),
		checkInterval: 30 * time.Second,
		logger:        logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = checker
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", checker.IsCritical()),
		zap.Duration("timeout", checker.Timeout()),
	)
	return nil
}

// UnregisterChecker removes a health check
func (m *Manager) UnregisterChecker(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checkers[name]; !exists {
		return fmt.Errorf("checker %s not found", name)
	}
	delete(m.checkers, name)
	delete(m.lastResults, name)
	return nil
}

// CheckerNames returns the registered checker names, sorted
func (m *Manager) CheckerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnUpdate registers fn to receive the overall health after every
// background run. Register before Start.
func (m *Manager) OnUpdate(fn func(OverallHealth)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetCheckInterval updates the background check interval. Takes effect on Start.
func (m *Manager) SetCheckInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.checkInterval = interval
	}
}

// GetDetailedHealth runs every checker concurrently, each under its own timeout
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	start := time.Now()
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}()
	}
	wg.Wait()

	components := make(map[string]CheckResult, len(results))
	summary := HealthSummary{Total: len(results)}
	for _, r := range results {
		components[r.Component] = r
		switch r.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if r.Critical {
			summary.Critical++
		} else {
			summary.NonCritical++
		}
	}

	m.mu.Lock()
	for name, r := range components {
		m.lastResults[name] = r
	}
	m.mu.Unlock()

	overall := calculateOverallStatus(components, summary)
	overall.Timestamp = start
	overall.Duration = time.Since(start)
	return DetailedHealth{Overall: overall, Components: components, Summary: summary, Timestamp: start}
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	return m.GetDetailedHealth(ctx).Overall
}

// IsReady reports whether no critical component is failing
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness. A process that can answer is alive;
// dependency failures only affect readiness.
func (m *Manager) IsLive(context.Context) bool {
	return true
}

// GetLastResults returns the most recent results without running new checks
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.lastResults))
	for k, v := range m.lastResults {
		out[k] = v
	}
	return out
}

// Start runs one check immediately, then every check interval until Stop
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.backgroundChecker(ctx, m.checkInterval, m.stopCh, m.doneCh)

	m.logger.Info("Health manager started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Int("registered_checkers", len(m.checkers)),
	)
	return nil
}

// Stop stops background checking and waits for the loop to exit
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	close(m.stopCh)
	done := m.doneCh
	m.started = false
	m.mu.Unlock()

	<-done
	m.logger.Info("Health manager stopped")
	return nil
}

func (m *Manager) backgroundChecker(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.runBackgroundChecks(ctx)
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) runBackgroundChecks(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	overall := m.GetOverallHealth(ctx)
	m.mu.RLock()
	listeners := append([]func(OverallHealth)(nil), m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(overall)
	}
	m.logger.Debug("Background health checks completed",
		zap.String("status", overall.Status.String()),
		zap.Bool("ready", overall.Ready),
	)
}

func runCheck(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	result := c.Check(checkCtx)
	result.Component = c.Name()
	result.Critical = c.IsCritical()
	result.Duration = time.Since(start)
	result.Timestamp = start
	return result
}

func calculateOverallStatus(components map[string]CheckResult, summary HealthSummary) OverallHealth {
	if summary.Total == 0 {
		return OverallHealth{Status: StatusUnknown, Message: "No health checks registered", Ready: false, Live: true}
	}

	criticalFailures, nonCriticalFailures, degraded := 0, 0, 0
	for _, r := range components {
		switch {
		case r.Status == StatusDegraded:
			degraded++
		case r.Status == StatusUnhealthy && r.Critical:
			criticalFailures++
		case r.Status == StatusUnhealthy:
			nonCriticalFailures++
		}
	}

	switch {
	case criticalFailures > 0:
		return OverallHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Live:    true,
		}
	case degraded > 0 || nonCriticalFailures > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d component(s) degraded or failing", degraded+nonCriticalFailures),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	default:
		return OverallHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("All %d components healthy", summary.Total),
			Ready:   true,
			Live:    true,
		}
	}
}
