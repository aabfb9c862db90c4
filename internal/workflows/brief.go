package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/aggregator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/fallback"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

const defaultEngineTimeout = 90 * time.Second

// BriefInput starts a ResearchBriefWorkflow
type BriefInput struct {
	Question                     string        `json:"question"`
	IncludeFallbackDisagreements bool          `json:"includeFallbackDisagreements,omitempty"`
	EngineTimeout                time.Duration `json:"engineTimeout,omitempty"`
}

// ResearchBriefWorkflow plans the question, runs every engine as its own
// activity in parallel, waits for all of them and aggregates in workflow
// code. An engine whose activity fails is replaced by its deterministic
// fallback, so the workflow only fails on a rejected question.
func ResearchBriefWorkflow(ctx workflow.Context, in BriefInput) (*models.Synthesis, error) {
	logger := workflow.GetLogger(ctx)

	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{constants.ValidationErrorType},
		},
	})
	var plan activities.PlanResult
	if err := workflow.ExecuteActivity(planCtx, constants.PlanSubquestionsActivity, activities.PlanInput{Question: in.Question}).Get(planCtx, &plan); err != nil {
		return nil, err
	}

	engineTimeout := in.EngineTimeout
	if engineTimeout <= 0 {
		engineTimeout = defaultEngineTimeout
	}
	engineCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: engineTimeout + 30*time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 2,
		},
	})

	all := engines.All()
	results := make([]models.EngineResult, len(all))
	done := workflow.NewChannel(ctx)
	for i, e := range all {
		workflow.Go(ctx, func(gctx workflow.Context) {
			input := activities.RunEngineInput{EngineID: e.ID, Question: plan.Question, Subquestions: plan.Subquestions}
			var res models.EngineResult
			if err := workflow.ExecuteActivity(engineCtx, constants.RunEngineActivity, input).Get(gctx, &res); err != nil {
				logger.Warn("Engine activity failed, using fallback", "engine", e.ID, "error", err)
				res = fallback.WithWarning(fallback.Synthesize(e, plan.Question, plan.Subquestions),
					fmt.Sprintf("%s activity failed: %v", e.Name, err))
			}
			results[i] = res
			done.Send(gctx, i)
		})
	}
	for range all {
		done.Receive(ctx, nil)
	}

	builder := aggregator.Builder{
		Clock:                        func() time.Time { return workflow.Now(ctx) },
		IncludeFallbackDisagreements: in.IncludeFallbackDisagreements,
	}
	synthesis := builder.Build(plan.Question, plan.Subquestions, results)
	logger.Info("Research brief workflow completed",
		"subquestions", len(plan.Subquestions),
		"fallback_engines", synthesis.FallbackEngines(),
	)
	return &synthesis, nil
}

// IsValidationFailure reports whether err, as returned by a workflow run,
// is a rejected question.
func IsValidationFailure(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == constants.ValidationErrorType
}
