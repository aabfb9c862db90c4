package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/fallback"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/normalize"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/tracing"
)

// Outcome classifies how an engine result was produced
type Outcome string

const (
	OutcomeLive           Outcome = "live"
	OutcomeCached         Outcome = "cached"
	OutcomeConfigMissing  Outcome = "config_missing"
	OutcomeHTTPStatus     Outcome = "http_status"
	OutcomeTransport      Outcome = "transport"
	OutcomeSchemaMismatch Outcome = "schema_mismatch"
)

// SchemaMismatchWarning is attached when a 2xx body fails validation
const SchemaMismatchWarning = "Engine response did not match the expected schema; fallback synthesis used instead."

const (
	DefaultTimeout  = 90 * time.Second
	maxWarningBody  = 500
	maxResponseBody = 4 << 20
)

// Options configures an Adapter. Zero values select defaults; a nil Cache
// disables result caching.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    circuitbreaker.Settings
	Cache      cache.ResultCache
	CacheTTL   time.Duration
}

// Adapter runs one engine under the uniform wire contract. Run never fails:
// every failure class resolves to a fallback result with a warning.
type Adapter struct {
	engine    engines.Engine
	transport *circuitbreaker.HTTPWrapper
	timeout   time.Duration
	cache     cache.ResultCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

type engineRequest struct {
	Question     string   `json:"question"`
	Subquestions []string `json:"subquestions"`
	Model        string   `json:"model,omitempty"`
}

// New creates an adapter for engine with its own circuit breaker
func New(engine engines.Engine, opts Options, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Breaker == (circuitbreaker.Settings{}) {
		opts.Breaker = circuitbreaker.EngineDefaults()
	}
	client := opts.HTTPClient
	if client == nil {
		// the per-call context deadline is authoritative; this is a backstop
		client = &http.Client{Timeout: opts.Timeout + 5*time.Second}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Adapter{
		engine:    engine,
		transport: circuitbreaker.NewHTTPWrapper(client, engine.ID, circuitbreaker.EngineService, opts.Breaker, logger),
		timeout:   opts.Timeout,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		logger:    logger.With(zap.String("engine", engine.ID)),
	}
}

// Engine returns the engine this adapter serves
func (a *Adapter) Engine() engines.Engine { return a.engine }

// Breaker returns the engine's circuit breaker
func (a *Adapter) Breaker() *circuitbreaker.CircuitBreaker { return a.transport.Breaker() }

// Run produces the engine's result for one question.
func (a *Adapter) Run(ctx context.Context, cfg engines.Config, question string, subquestions []string) models.EngineResult {
	start := time.Now()
	result, outcome := a.run(ctx, cfg, question, subquestions)
	elapsed := time.Since(start)

	metrics.RecordEngineCall(a.engine.ID, string(outcome), result.UsedFallback, elapsed.Seconds())
	fields := []zap.Field{zap.String("outcome", string(outcome)), zap.Duration("duration", elapsed)}
	switch outcome {
	case OutcomeLive, OutcomeCached:
		a.logger.Debug("Engine call completed", append(fields, zap.Int("findings", len(result.Findings)))...)
	case OutcomeConfigMissing:
		a.logger.Debug("Engine not configured, using fallback", fields...)
	default:
		if len(result.Warnings) > 0 {
			fields = append(fields, zap.String("warning", result.Warnings[0]))
		}
		a.logger.Warn("Engine call failed, using fallback", fields...)
	}
	return result
}

func (a *Adapter) run(ctx context.Context, cfg engines.Config, question string, subquestions []string) (models.EngineResult, Outcome) {
	if !cfg.Live() {
		return fallback.Synthesize(a.engine, question, subquestions), OutcomeConfigMissing
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)

	var key string
	if a.cache != nil {
		key = cache.Key(a.engine.ID, endpoint, strings.TrimSpace(cfg.APIKey), cfg.Model, question, subquestions)
		if cached, ok := a.cache.Get(ctx, key); ok {
			return cached, OutcomeCached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx, span := tracing.StartEngineSpan(ctx, a.engine.ID, http.MethodPost, endpoint)
	defer span.End()

	result, outcome := a.call(ctx, cfg, endpoint, question, subquestions)
	span.SetAttributes(attribute.String("briefing.outcome", string(outcome)))
	if result.UsedFallback {
		span.SetStatus(codes.Error, string(outcome))
	}

	if outcome == OutcomeLive && a.cache != nil {
		// detached so a cancelled request still populates the cache
		setCtx, setCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		a.cache.Set(setCtx, key, result, a.cacheTTL)
		setCancel()
	}
	return result, outcome
}

func (a *Adapter) call(ctx context.Context, cfg engines.Config, endpoint, question string, subquestions []string) (models.EngineResult, Outcome) {
	subs := subquestions
	if subs == nil {
		subs = []string{}
	}
	body, err := json.Marshal(engineRequest{Question: question, Subquestions: subs, Model: strings.TrimSpace(cfg.Model)})
	if err != nil {
		return a.transportFailure(question, subquestions, err), OutcomeTransport
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return a.transportFailure(question, subquestions, err), OutcomeTransport
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := a.transport.Do(req)
	if err != nil {
		return a.transportFailure(question, subquestions, err), OutcomeTransport
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		warning := fmt.Sprintf("%s returned HTTP %d: %s", a.engine.Name, resp.StatusCode, truncate(strings.TrimSpace(string(raw)), maxWarningBody))
		return fallback.WithWarning(fallback.Synthesize(a.engine, question, subquestions), warning), OutcomeHTTPStatus
	}
	if err != nil {
		return a.transportFailure(question, subquestions, err), OutcomeTransport
	}

	payload, err := normalize.Decode(raw)
	if err != nil {
		var schemaErr *normalize.SchemaError
		if errors.As(err, &schemaErr) {
			a.logger.Debug("Engine payload rejected", zap.Strings("violations", schemaErr.Violations))
		}
		res := fallback.WithWarning(fallback.Synthesize(a.engine, question, subquestions), SchemaMismatchWarning)
		res.Endpoint = endpoint
		return res, OutcomeSchemaMismatch
	}
	return normalize.Normalize(a.engine, payload, subquestions, endpoint), OutcomeLive
}

func (a *Adapter) transportFailure(question string, subquestions []string, err error) models.EngineResult {
	warning := fmt.Sprintf("%s request failed: %v", a.engine.Name, err)
	return fallback.WithWarning(fallback.Synthesize(a.engine, question, subquestions), warning)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
