package interfaces

import (
	"context"

	"github.com/m-mizutani/herder/pkg/domain/model"
)

// ReviewService defines pull request operations on the code review host
type ReviewService interface {
	// EvaluatePullRequest retrieves a pull request and its reviews and
	// returns the eligibility verdict
	EvaluatePullRequest(ctx context.Context, number int) (*model.PullRequestEvaluation, error)

	// AddLabel adds a label to a pull request
	AddLabel(ctx context.Context, number int, label string) error

	// RemoveLabel removes a label from a pull request
	RemoveLabel(ctx context.Context, number int, label string) error

	// Approve submits an approving review
	Approve(ctx context.Context, number int, approval *model.Approval) error
}

// WorkflowRunLister lists runs of a workflow in the repository
type WorkflowRunLister interface {
	ListWorkflowRuns(ctx context.Context, workflowFile, event, branch string) ([]*model.WorkflowRun, error)
}

// EventResolver derives deploy-commit parameters from a triggering event
type EventResolver interface {
	Resolve(ctx context.Context, event *model.TriggerEvent) (*model.ResolvedParams, error)
}
