package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// EngineService labels engine breakers in metrics
const EngineService = "research-engine"

// HTTPWrapper wraps an http.Client with a circuit breaker and records metrics consistently
type HTTPWrapper struct {
	client  *http.Client
	cb      *CircuitBreaker
	name    string
	service string
	logger  *zap.Logger
}

// NewHTTPWrapper creates an HTTP wrapper guarded by a breaker built from settings.
func NewHTTPWrapper(client *http.Client, name, service string, settings Settings, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker(name, settings.ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	return &HTTPWrapper{client: client, cb: cb, name: name, service: service, logger: logger}
}

// Do executes an HTTP request through the circuit breaker. 5xx responses count
// as breaker failures but are still returned to the caller with a nil error;
// 4xx do not trip the breaker. Cancellation of the request context by the
// caller is returned without being counted against the engine.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var err2 error
		resp, err2 = hw.client.Do(req)
		if err2 != nil {
			if errors.Is(req.Context().Err(), context.Canceled) {
				return Neutral(err2)
			}
			return err2
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	var statusErr *httpStatusError
	isStatus := errors.As(err, &statusErr)
	GlobalMetricsCollector.RecordRequest(hw.name, hw.service, hw.cb.State(), err == nil)

	if isStatus {
		return resp, nil
	}
	if err != nil && resp != nil {
		resp.Body.Close()
		resp = nil
	}
	return resp, err
}

// Breaker exposes the underlying breaker for health reporting
func (hw *HTTPWrapper) Breaker() *CircuitBreaker { return hw.cb }

// httpStatusError marks 5xx responses for breaker accounting
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
