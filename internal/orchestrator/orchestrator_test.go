package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/adapter"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/aggregator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

const demandBody = `{"summary": "s", "findings": [{"theme": "Demand", "statement": "Demand is rising", "confidence": "high", "evidenceStatus": "confirmed"}]}`

func newTestOrchestrator(t *testing.T, timeout time.Duration) *Orchestrator {
	opts := adapter.Options{
		Timeout: timeout,
		Breaker: circuitbreaker.Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 100, SuccessThreshold: 1},
	}
	return New(opts, aggregator.Builder{}, zaptest.NewLogger(t))
}

func engineServer(t *testing.T, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOrchestrateRejectsBlankQuestions(t *testing.T) {
	o := newTestOrchestrator(t, time.Second)
	for _, q := range []string{"", "  ", "\n\t"} {
		s, err := o.Orchestrate(context.Background(), q, nil)
		assert.Nil(t, s)
		assert.True(t, models.IsValidationError(err), "question %q", q)
	}
}

func TestOrchestrateAllUnconfigured(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	o := newTestOrchestrator(t, time.Second)
	s, err := o.Orchestrate(context.Background(), "What are the risks of X?", nil)
	require.NoError(t, err)

	require.Len(t, s.Engines, 4)
	for i, r := range s.Engines {
		assert.Equal(t, engines.IDs()[i], r.EngineID)
		assert.True(t, r.UsedFallback)
		assert.Equal(t, models.ConfidenceLow, r.OverallConfidence)
	}
	assert.Equal(t, aggregator.ScaffoldingRiskLine, s.Risks[0])

	var credLine string
	for _, rec := range s.Recommendations {
		if strings.HasPrefix(rec, "Configure credentials for") {
			credLine = rec
		}
	}
	require.NotEmpty(t, credLine)
	for _, e := range engines.All() {
		assert.Contains(t, credLine, e.Name)
	}

	assert.NotEmpty(t, s.Subquestions)
	assert.LessOrEqual(t, len(s.Subquestions), 6)
}

func TestOrchestrateIsIdempotentWhenUnconfigured(t *testing.T) {
	o := newTestOrchestrator(t, time.Second)
	a, err := o.Orchestrate(context.Background(), "How do tariffs affect steel prices?", nil)
	require.NoError(t, err)
	b, err := o.Orchestrate(context.Background(), "How do tariffs affect steel prices?", nil)
	require.NoError(t, err)

	b.GeneratedAt = a.GeneratedAt
	assert.Equal(t, a, b)
}

func TestOrchestrateConsensusAcrossEngines(t *testing.T) {
	pplx := engineServer(t, demandBody)
	gemini := engineServer(t, demandBody)

	o := newTestOrchestrator(t, time.Second)
	s, err := o.Orchestrate(context.Background(), "Is demand rising?", engines.Configs{
		engines.Perplexity: {Endpoint: pplx.URL, APIKey: "k"},
		engines.Gemini:     {Endpoint: gemini.URL, APIKey: "k"},
	})
	require.NoError(t, err)

	require.Len(t, s.Consensus, 1)
	assert.Equal(t, "Demand is rising (corroborated by Perplexity Deep Research, Gemini Deep Research).", s.Consensus[0])
	for _, d := range s.Disagreements {
		assert.NotContains(t, d, "Demand is rising")
	}
	assert.False(t, s.Engines[0].UsedFallback)
	assert.True(t, s.Engines[1].UsedFallback)
	assert.False(t, s.Engines[2].UsedFallback)
	assert.True(t, s.Engines[3].UsedFallback)
}

func TestSlowEngineDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)
	fast := engineServer(t, demandBody)

	o := newTestOrchestrator(t, 200*time.Millisecond)
	start := time.Now()
	s, err := o.Orchestrate(context.Background(), "Is demand rising?", engines.Configs{
		engines.Perplexity: {Endpoint: slow.URL, APIKey: "k"},
		engines.OpenAI:     {Endpoint: fast.URL, APIKey: "k"},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, s.Engines, 4)
	assert.True(t, s.Engines[0].UsedFallback)
	assert.Contains(t, s.Engines[0].Warnings[0], "request failed")
	assert.False(t, s.Engines[1].UsedFallback)
}

func TestCancellationResolvesToFallbacks(t *testing.T) {
	srv := engineServer(t, demandBody)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, time.Second)
	cfg := engines.Configs{}
	for _, id := range engines.IDs() {
		cfg[id] = engines.Config{Endpoint: srv.URL, APIKey: "k"}
	}
	s, err := o.Orchestrate(ctx, "Is demand rising?", cfg)
	require.NoError(t, err)

	require.Len(t, s.Engines, 4)
	for _, r := range s.Engines {
		assert.True(t, r.UsedFallback)
		assert.Contains(t, r.Warnings[0], "context canceled")
	}
}

func TestAdapterLookup(t *testing.T) {
	o := newTestOrchestrator(t, time.Second)
	a, ok := o.Adapter(engines.Elicit)
	require.True(t, ok)
	assert.Equal(t, engines.Elicit, a.Engine().ID)
	_, ok = o.Adapter("unknown")
	assert.False(t, ok)
	assert.Len(t, o.Adapters(), 4)
}
