package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/fallback"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

const question = "What are the risks of X?"

var subs = []string{"Is demand rising?", "Who supplies X?"}

const validBody = `{
	"summary": "Live summary",
	"findings": [
		{"theme": "Demand", "statement": "Demand is rising", "rationale": "Orders up",
		 "confidence": "high", "evidenceStatus": "confirmed",
		 "references": [{"title": "Report", "url": "https://example.com/r"}]}
	],
	"overallConfidence": "high"
}`

type engineFake struct {
	*httptest.Server
	hits int32
}

func newEngineFake(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *engineFake {
	f := &engineFake{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.hits, 1)
		handler(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *engineFake) Hits() int32 { return atomic.LoadInt32(&f.hits) }

func testOptions() Options {
	return Options{
		Timeout: 2 * time.Second,
		Breaker: circuitbreaker.Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 3, SuccessThreshold: 1},
	}
}

func newAdapter(t *testing.T, id string, opts Options) *Adapter {
	e, ok := engines.Lookup(id)
	require.True(t, ok)
	return New(e, opts, zaptest.NewLogger(t))
}

func TestRunConfigMissing(t *testing.T) {
	a := newAdapter(t, engines.Perplexity, testOptions())
	for _, cfg := range []engines.Config{{}, {Endpoint: "https://e"}, {APIKey: "k"}} {
		res, outcome := a.run(context.Background(), cfg, question, subs)
		assert.Equal(t, OutcomeConfigMissing, outcome)
		assert.True(t, res.UsedFallback)
		assert.Equal(t, models.ConfidenceLow, res.OverallConfidence)
		assert.Equal(t, []string{models.FallbackDisclosure}, res.Warnings)
		assert.Empty(t, res.Endpoint)
		assert.Equal(t, fallback.Synthesize(a.Engine(), question, subs), res)
	}
}

func TestRunLiveSuccess(t *testing.T) {
	var got engineRequest
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(validBody))
	})

	a := newAdapter(t, engines.OpenAI, testOptions())
	res, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "secret", Model: "o3-deep-research"}, question, subs)

	assert.Equal(t, OutcomeLive, outcome)
	assert.Equal(t, engineRequest{Question: question, Subquestions: subs, Model: "o3-deep-research"}, got)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, srv.URL, res.Endpoint)
	assert.Equal(t, "Live summary", res.Summary)
	assert.Equal(t, models.ConfidenceHigh, res.OverallConfidence)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Demand is rising", res.Findings[0].Statement)
	assert.Empty(t, res.Warnings)
}

func TestRunOmitsEmptyModel(t *testing.T) {
	var raw map[string]any
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(validBody))
	})
	a := newAdapter(t, engines.Gemini, testOptions())
	_, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, nil)

	assert.Equal(t, OutcomeLive, outcome)
	assert.NotContains(t, raw, "model")
	assert.Equal(t, []any{}, raw["subquestions"])
}

func TestRunHTTPStatus(t *testing.T) {
	long := strings.Repeat("x", 800)
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(long))
	})
	a := newAdapter(t, engines.Elicit, testOptions())
	res, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, subs)

	assert.Equal(t, OutcomeHTTPStatus, outcome)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, models.ConfidenceLow, res.OverallConfidence)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "Elicit returned HTTP 429: "+strings.Repeat("x", 500), res.Warnings[0])
	assert.Equal(t, models.FallbackDisclosure, res.Warnings[1])
	assert.Empty(t, res.Endpoint)
}

func TestRunTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := newAdapter(t, engines.Perplexity, testOptions())
	res, outcome := a.run(context.Background(), engines.Config{Endpoint: url, APIKey: "k"}, question, subs)

	assert.Equal(t, OutcomeTransport, outcome)
	assert.True(t, res.UsedFallback)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "Perplexity Deep Research request failed: "), res.Warnings[0])
}

func TestRunTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	a := newAdapter(t, engines.Gemini, opts)

	start := time.Now()
	res, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, subs)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, OutcomeTransport, outcome)
	assert.Contains(t, res.Warnings[0], "deadline exceeded")
}

func TestRunCancelledContext(t *testing.T) {
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validBody))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newAdapter(t, engines.OpenAI, testOptions())
	res, outcome := a.run(ctx, engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, subs)

	assert.Equal(t, OutcomeTransport, outcome)
	assert.True(t, res.UsedFallback)
	assert.Contains(t, res.Warnings[0], "context canceled")
	assert.Zero(t, srv.Hits())
	assert.Equal(t, circuitbreaker.StateClosed, a.Breaker().State())
}

func TestRunSchemaMismatch(t *testing.T) {
	for name, body := range map[string]string{
		"missing summary": `{"findings": []}`,
		"findings object": `{"summary": "s", "findings": {}}`,
		"html":            `<html></html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			a := newAdapter(t, engines.Elicit, testOptions())
			res, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, subs)

			assert.Equal(t, OutcomeSchemaMismatch, outcome)
			assert.True(t, res.UsedFallback)
			assert.Equal(t, models.ConfidenceLow, res.OverallConfidence)
			assert.Equal(t, []string{SchemaMismatchWarning, models.FallbackDisclosure}, res.Warnings)
			assert.Equal(t, srv.URL, res.Endpoint)
		})
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	a := newAdapter(t, engines.Perplexity, testOptions())
	cfg := engines.Config{Endpoint: srv.URL, APIKey: "k"}

	for i := 0; i < 3; i++ {
		_, outcome := a.run(context.Background(), cfg, question, subs)
		assert.Equal(t, OutcomeHTTPStatus, outcome)
	}
	require.Equal(t, circuitbreaker.StateOpen, a.Breaker().State())

	res, outcome := a.run(context.Background(), cfg, question, subs)
	assert.Equal(t, OutcomeTransport, outcome)
	assert.Contains(t, res.Warnings[0], circuitbreaker.ErrCircuitBreakerOpen.Error())
	assert.Equal(t, int32(3), srv.Hits())
}

func TestZeroBreakerSettingsIgnoreEnvironment(t *testing.T) {
	t.Setenv("CB_ENGINE_FAILURE_THRESHOLD", "1")
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	a := newAdapter(t, engines.Elicit, Options{Timeout: 2 * time.Second})

	_, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, subs)
	assert.Equal(t, OutcomeHTTPStatus, outcome)
	assert.Equal(t, circuitbreaker.StateClosed, a.Breaker().State(), "defaults need %d failures", circuitbreaker.EngineDefaults().FailureThreshold)
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validBody))
	})
	opts := testOptions()
	opts.Cache = cache.NewLocalLRU(8)
	a := newAdapter(t, engines.Gemini, opts)
	cfg := engines.Config{Endpoint: srv.URL, APIKey: "k"}

	first, outcome := a.run(context.Background(), cfg, question, subs)
	require.Equal(t, OutcomeLive, outcome)
	second, outcome := a.run(context.Background(), cfg, question, subs)
	assert.Equal(t, OutcomeCached, outcome)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.Hits())

	// a different model is a different cache entry
	cfg.Model = "other"
	_, outcome = a.run(context.Background(), cfg, question, subs)
	assert.Equal(t, OutcomeLive, outcome)
}

func TestCacheIsScopedToCredential(t *testing.T) {
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tenant-a" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid key"))
			return
		}
		_, _ = w.Write([]byte(validBody))
	})
	opts := testOptions()
	opts.Cache = cache.NewLocalLRU(8)
	a := newAdapter(t, engines.Perplexity, opts)

	_, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "tenant-a"}, question, subs)
	require.Equal(t, OutcomeLive, outcome)

	// a revoked or different key must dial again and see its own failure
	res, outcome := a.run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "tenant-b"}, question, subs)
	assert.Equal(t, OutcomeHTTPStatus, outcome)
	assert.True(t, res.UsedFallback)
	assert.Contains(t, res.Warnings[0], "HTTP 401")
	assert.Equal(t, int32(2), srv.Hits())
}

func TestFallbacksAreNotCached(t *testing.T) {
	srv := newEngineFake(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	lru := cache.NewLocalLRU(8)
	opts := testOptions()
	opts.Cache = lru
	a := newAdapter(t, engines.OpenAI, opts)

	_ = a.Run(context.Background(), engines.Config{Endpoint: srv.URL, APIKey: "k"}, question, subs)
	assert.Zero(t, lru.Len())
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "hé", truncate("héllo", 2))
}
