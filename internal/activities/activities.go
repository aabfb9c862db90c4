package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/planner"
)

type PlanInput struct {
	Question string `json:"question"`
}

type PlanResult struct {
	Question     string   `json:"question"`
	Subquestions []string `json:"subquestions"`
}

// RunEngineInput carries no credentials; the worker resolves them so
// secrets never enter workflow history.
type RunEngineInput struct {
	EngineID     string   `json:"engineId"`
	Question     string   `json:"question"`
	Subquestions []string `json:"subquestions"`
}

// Activities holds the worker-side dependencies of the brief workflow
type Activities struct {
	orch    *orchestrator.Orchestrator
	configs engines.ConfigSource
	logger  *zap.Logger
}

func NewActivities(orch *orchestrator.Orchestrator, configs engines.ConfigSource, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configs == nil {
		configs = engines.StaticConfigs{}
	}
	return &Activities{orch: orch, configs: configs, logger: logger}
}

// PlanSubquestions decomposes the question. A blank question fails with a
// non-retryable ValidationError.
func (a *Activities) PlanSubquestions(ctx context.Context, in PlanInput) (PlanResult, error) {
	question := strings.TrimSpace(in.Question)
	subs, err := planner.Plan(question)
	if err != nil {
		if models.IsValidationError(err) {
			return PlanResult{}, temporal.NewNonRetryableApplicationError(err.Error(), constants.ValidationErrorType, err)
		}
		return PlanResult{}, err
	}
	activity.GetLogger(ctx).Debug("Planned sub-questions", "count", len(subs))
	return PlanResult{Question: question, Subquestions: subs}, nil
}

// RunEngine runs one engine adapter. Engine failures come back as a
// fallback result, never as an activity error.
func (a *Activities) RunEngine(ctx context.Context, in RunEngineInput) (models.EngineResult, error) {
	ad, ok := a.orch.Adapter(in.EngineID)
	if !ok {
		return models.EngineResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown engine %q", in.EngineID), "UnknownEngine", nil)
	}
	cfg := a.configs.EngineConfigs().For(in.EngineID)
	res := ad.Run(ctx, cfg, in.Question, in.Subquestions)
	a.logger.Debug("Engine activity finished",
		zap.String("engine", in.EngineID),
		zap.String("activity_id", activity.GetInfo(ctx).ActivityID),
		zap.Bool("used_fallback", res.UsedFallback),
	)
	return res, nil
}
