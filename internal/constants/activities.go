package constants

// Workflow and activity names shared by registration and execution
const (
	ResearchBriefWorkflow = "ResearchBriefWorkflow"

	PlanSubquestionsActivity = "PlanSubquestions"
	RunEngineActivity        = "RunEngine"
)

// ValidationErrorType is the application error type of a rejected question.
// It is listed as non-retryable on every activity that can return it.
const ValidationErrorType = "ValidationError"

// WorkflowIDPrefix prefixes brief workflow IDs: brief-<uuid>
const WorkflowIDPrefix = "brief-"
