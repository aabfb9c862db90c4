package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/adapter"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/aggregator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/planner"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/tracing"
)

// Orchestrator runs the full pipeline: plan, concurrent engine fan-out,
// barrier, aggregation. It holds no per-request state.
type Orchestrator struct {
	adapters []*adapter.Adapter
	builder  aggregator.Builder
	logger   *zap.Logger
}

// New builds one adapter per registered engine, in registry order.
func New(opts adapter.Options, builder aggregator.Builder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	all := engines.All()
	adapters := make([]*adapter.Adapter, 0, len(all))
	for _, e := range all {
		adapters = append(adapters, adapter.New(e, opts, logger))
	}
	return &Orchestrator{adapters: adapters, builder: builder, logger: logger}
}

// Adapters returns the engine adapters in dispatch order
func (o *Orchestrator) Adapters() []*adapter.Adapter {
	return append([]*adapter.Adapter(nil), o.adapters...)
}

// Adapter returns the adapter for one engine
func (o *Orchestrator) Adapter(id string) (*adapter.Adapter, bool) {
	for _, a := range o.adapters {
		if a.Engine().ID == id {
			return a, true
		}
	}
	return nil, false
}

// Builder returns the aggregation settings
func (o *Orchestrator) Builder() aggregator.Builder { return o.builder }

// Orchestrate answers one question. The only error it returns is a
// *models.ValidationError for a blank question; every engine failure is
// absorbed into the Synthesis as a fallback result with warnings.
func (o *Orchestrator) Orchestrate(ctx context.Context, question string, configs engines.Configs) (*models.Synthesis, error) {
	start := time.Now()
	question = strings.TrimSpace(question)

	subquestions, err := planner.Plan(question)
	if err != nil {
		metrics.RecordRequest("inline", "invalid", time.Since(start).Seconds())
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "orchestrate",
		attribute.Int("briefing.subquestions", len(subquestions)),
		attribute.Int("briefing.engines", len(o.adapters)))
	defer span.End()

	results := o.dispatch(ctx, configs, question, subquestions)
	synthesis := o.builder.Build(question, subquestions, results)

	fallbacks := synthesis.FallbackEngines()
	span.SetAttributes(attribute.Int("briefing.fallbacks", len(fallbacks)))
	metrics.RecordRequest("inline", "ok", time.Since(start).Seconds())
	o.logger.Info("Research brief completed",
		zap.Int("subquestions", len(subquestions)),
		zap.Int("engines", len(results)),
		zap.Strings("fallback_engines", fallbacks),
		zap.Int("consensus", len(synthesis.Consensus)),
		zap.Duration("duration", time.Since(start)),
	)
	return &synthesis, nil
}

// dispatch runs every adapter concurrently and returns once all have
// finished. Each adapter applies its own timeout; cancelling ctx resolves
// the pending calls to their fallbacks.
func (o *Orchestrator) dispatch(ctx context.Context, configs engines.Configs, question string, subquestions []string) []models.EngineResult {
	results := make([]models.EngineResult, len(o.adapters))
	var g errgroup.Group
	for i, a := range o.adapters {
		g.Go(func() error {
			results[i] = a.Run(ctx, configs.For(a.Engine().ID), question, subquestions)
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range o.adapters {
		if results[i].EngineID != a.Engine().ID {
			panic(fmt.Sprintf("orchestrator: engine %q produced no result", a.Engine().ID))
		}
	}
	return results
}
