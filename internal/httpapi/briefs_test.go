package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/adapter"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/aggregator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/workflows"
)

func newInlineServer(t *testing.T, cfgs engines.StaticConfigs) *httptest.Server {
	orch := orchestrator.New(adapter.Options{Timeout: time.Second}, aggregator.Builder{}, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	NewBriefHandler(InlineRunner{Orchestrator: orch, Configs: cfgs}, cfgs, zaptest.NewLogger(t)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string, header http.Header) *http.Response {
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateBriefInline(t *testing.T) {
	srv := newInlineServer(t, nil)
	resp := post(t, srv.URL+"/v1/briefs", `{"question": "What are the risks of X?"}`, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	_, err := uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)

	var s models.Synthesis
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.Equal(t, "What are the risks of X?", s.Question)
	assert.Len(t, s.Engines, 4)
	assert.Equal(t, aggregator.ScaffoldingRiskLine, s.Risks[0])
}

func TestCreateBriefErrors(t *testing.T) {
	srv := newInlineServer(t, nil)
	tests := map[string]struct {
		body string
		code int
	}{
		"blank question":   {`{"question": "   "}`, http.StatusBadRequest},
		"missing question": {`{}`, http.StatusBadRequest},
		"not json":         {`question=x`, http.StatusBadRequest},
		"empty body":       {``, http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/briefs", tt.body, nil)
			assert.Equal(t, tt.code, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}

	resp, err := http.Get(srv.URL + "/v1/briefs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newInlineServer(t, nil)
	resp := post(t, srv.URL+"/v1/briefs", `{"question": ""}`, http.Header{RequestIDHeader: {"req-123"}})
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
}

func TestListEngines(t *testing.T) {
	srv := newInlineServer(t, engines.StaticConfigs{
		engines.OpenAI: {Endpoint: "https://openai.example", APIKey: "sk-secret", Model: "o3-deep-research"},
	})
	resp, err := http.Get(srv.URL + "/v1/engines")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		Engines []EngineInfo `json:"engines"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Engines, 4)
	assert.Equal(t, engines.IDs()[0], body.Engines[0].ID)
	assert.False(t, body.Engines[0].Configured)
	assert.True(t, body.Engines[1].Configured)
	assert.Equal(t, "o3-deep-research", body.Engines[1].Model)
	assert.NotContains(t, string(raw), "sk-secret")
}

type fakeRun struct {
	result *models.Synthesis
	err    error
}

func (f fakeRun) GetID() string    { return "brief-test" }
func (f fakeRun) GetRunID() string { return "run-1" }
func (f fakeRun) Get(_ context.Context, valuePtr interface{}) error {
	if f.err != nil {
		return f.err
	}
	*(valuePtr.(*models.Synthesis)) = *f.result
	return nil
}
func (f fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, _ client.WorkflowRunGetOptions) error {
	return f.Get(ctx, valuePtr)
}

type fakeStarter struct {
	run     fakeRun
	err     error
	options client.StartWorkflowOptions
	input   workflows.BriefInput
	calls   int
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, wf interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.calls++
	f.options = options
	if name, ok := wf.(string); !ok || name != constants.ResearchBriefWorkflow {
		return nil, errors.New("unexpected workflow")
	}
	f.input = args[0].(workflows.BriefInput)
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func TestTemporalRunner(t *testing.T) {
	starter := &fakeStarter{run: fakeRun{result: &models.Synthesis{Question: "Is demand rising?"}}}
	r := TemporalRunner{Client: starter, TaskQueue: "briefs", EngineTimeout: 5 * time.Second, IncludeFallbackDisagreements: true, Logger: zaptest.NewLogger(t)}

	s, err := r.Run(context.Background(), "  Is demand rising?  ")
	require.NoError(t, err)
	assert.Equal(t, "Is demand rising?", s.Question)

	assert.True(t, strings.HasPrefix(starter.options.ID, constants.WorkflowIDPrefix))
	assert.Equal(t, "briefs", starter.options.TaskQueue)
	assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE, starter.options.WorkflowIDReusePolicy)
	assert.Equal(t, workflows.BriefInput{Question: "Is demand rising?", IncludeFallbackDisagreements: true, EngineTimeout: 5 * time.Second}, starter.input)
}

func TestTemporalRunnerErrors(t *testing.T) {
	starter := &fakeStarter{}
	r := TemporalRunner{Client: starter, TaskQueue: "briefs"}
	_, err := r.Run(context.Background(), " ")
	assert.True(t, models.IsValidationError(err))
	assert.Zero(t, starter.calls, "blank questions never start a workflow")

	starter.err = errors.New("frontend unavailable")
	_, err = r.Run(context.Background(), "q?")
	require.Error(t, err)
	assert.False(t, models.IsValidationError(err))

	starter.err = nil
	starter.run = fakeRun{err: temporal.NewNonRetryableApplicationError("blank", constants.ValidationErrorType, nil)}
	_, err = r.Run(context.Background(), "q?")
	assert.True(t, models.IsValidationError(err))
}

func TestHandlerMapsRunnerFailureTo502(t *testing.T) {
	mux := http.NewServeMux()
	NewBriefHandler(TemporalRunner{Client: &fakeStarter{err: errors.New("down")}, TaskQueue: "q"}, nil, zaptest.NewLogger(t)).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/briefs", strings.NewReader(`{"question":"q?"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRequestIDReachesEngine(t *testing.T) {
	seen := make(chan string, 1)
	engineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(interceptors.BriefIDHeader)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer engineSrv.Close()

	cfgs := engines.StaticConfigs{engines.Elicit: {Endpoint: engineSrv.URL, APIKey: "k"}}
	orch := orchestrator.New(adapter.Options{
		Timeout:    time.Second,
		HTTPClient: &http.Client{Transport: interceptors.NewBriefRoundTripper(nil)},
	}, aggregator.Builder{}, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	NewBriefHandler(InlineRunner{Orchestrator: orch, Configs: cfgs}, cfgs, zaptest.NewLogger(t)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/briefs", `{"question":"q?"}`, http.Header{RequestIDHeader: {"req-777"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-777", <-seen)
}
