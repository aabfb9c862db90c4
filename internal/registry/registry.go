package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/workflows"
)

// Registrar is the subset of worker.Worker used for registration
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

var _ Registrar = worker.Worker(nil)

// BriefRegistry registers the brief workflow and its activities by their
// stable names so that renaming Go functions never breaks replay.
type BriefRegistry struct {
	acts   *activities.Activities
	logger *zap.Logger
}

func NewBriefRegistry(acts *activities.Activities, logger *zap.Logger) *BriefRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefRegistry{acts: acts, logger: logger}
}

func (r *BriefRegistry) RegisterWorkflows(w Registrar) {
	w.RegisterWorkflowWithOptions(workflows.ResearchBriefWorkflow, workflow.RegisterOptions{Name: constants.ResearchBriefWorkflow})
	r.logger.Info("Registered workflows", zap.String("workflow", constants.ResearchBriefWorkflow))
}

func (r *BriefRegistry) RegisterActivities(w Registrar) {
	w.RegisterActivityWithOptions(r.acts.PlanSubquestions, activity.RegisterOptions{Name: constants.PlanSubquestionsActivity})
	w.RegisterActivityWithOptions(r.acts.RunEngine, activity.RegisterOptions{Name: constants.RunEngineActivity})
	r.logger.Info("Registered activities",
		zap.Strings("activities", []string{constants.PlanSubquestionsActivity, constants.RunEngineActivity}))
}

// Register registers everything the brief worker runs
func (r *BriefRegistry) Register(w Registrar) {
	r.RegisterWorkflows(w)
	r.RegisterActivities(w)
}
