package httpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/planner"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/workflows"
)

// Runner produces a brief for one question. A blank question is reported
// as a *models.ValidationError; any other error is an infrastructure failure.
type Runner interface {
	Run(ctx context.Context, question string) (*models.Synthesis, error)
	Mode() string
}

// InlineRunner runs the pipeline in process
type InlineRunner struct {
	Orchestrator *orchestrator.Orchestrator
	Configs      engines.ConfigSource
}

func (r InlineRunner) Mode() string { return "inline" }

func (r InlineRunner) Run(ctx context.Context, question string) (*models.Synthesis, error) {
	var cfgs engines.Configs
	if r.Configs != nil {
		cfgs = r.Configs.EngineConfigs()
	}
	return r.Orchestrator.Orchestrate(ctx, question, cfgs)
}

// WorkflowStarter is the part of client.Client the Temporal runner uses
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalRunner runs each brief as a ResearchBriefWorkflow and waits for it
type TemporalRunner struct {
	Client                       WorkflowStarter
	TaskQueue                    string
	EngineTimeout                time.Duration
	IncludeFallbackDisagreements bool
	Logger                       *zap.Logger
}

func (r TemporalRunner) Mode() string { return "temporal" }

func (r TemporalRunner) Run(ctx context.Context, question string) (*models.Synthesis, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	// reject blank questions before they cost a workflow execution
	if _, err := planner.Plan(question); err != nil {
		metrics.RecordRequest(r.Mode(), "invalid", time.Since(start).Seconds())
		return nil, err
	}

	opts := client.StartWorkflowOptions{
		ID:                    constants.WorkflowIDPrefix + uuid.NewString(),
		TaskQueue:             r.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := r.Client.ExecuteWorkflow(ctx, opts, constants.ResearchBriefWorkflow, workflows.BriefInput{
		Question:                     question,
		IncludeFallbackDisagreements: r.IncludeFallbackDisagreements,
		EngineTimeout:                r.EngineTimeout,
	})
	if err != nil {
		metrics.RecordRequest(r.Mode(), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("start brief workflow: %w", err)
	}

	var s models.Synthesis
	if err := run.Get(ctx, &s); err != nil {
		if workflows.IsValidationFailure(err) {
			metrics.RecordRequest(r.Mode(), "invalid", time.Since(start).Seconds())
			return nil, models.NewValidationError("question", "must not be blank")
		}
		metrics.RecordRequest(r.Mode(), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("brief workflow %s: %w", run.GetID(), err)
	}
	metrics.RecordRequest(r.Mode(), "ok", time.Since(start).Seconds())
	if r.Logger != nil {
		r.Logger.Info("Brief workflow completed",
			zap.String("workflow_id", run.GetID()),
			zap.String("run_id", run.GetRunID()),
			zap.Strings("fallback_engines", s.FallbackEngines()),
		)
	}
	return &s, nil
}
