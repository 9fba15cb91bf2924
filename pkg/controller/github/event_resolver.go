package github

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	githubinfra "github.com/m-mizutani/herder/pkg/infra/github"
)

// DefaultValidationWorkflow is the workflow whose runs validate pull requests
const DefaultValidationWorkflow = "validate.yml"

// EventResolver derives deploy-commit parameters from the event that
// triggered the merge check workflow
type EventResolver struct {
	runs         interfaces.WorkflowRunLister
	workflowFile string
}

var _ interfaces.EventResolver = (*EventResolver)(nil)

// NewEventResolver creates a new resolver. runs is only consulted for
// pull_request_target and pull_request_review triggers.
func NewEventResolver(runs interfaces.WorkflowRunLister, workflowFile string) *EventResolver {
	if workflowFile == "" {
		workflowFile = DefaultValidationWorkflow
	}
	return &EventResolver{
		runs:         runs,
		workflowFile: workflowFile,
	}
}

// Resolve processes a triggering event
func (r *EventResolver) Resolve(ctx context.Context, event *model.TriggerEvent) (*model.ResolvedParams, error) {
	logger := ctxlog.From(ctx)
	logger.Debug("resolving trigger event", "type", event.Type, "payload", string(event.RawPayload))

	var (
		params *model.ResolvedParams
		err    error
	)
	switch event.Type {
	case model.TriggerWorkflowRun:
		params, err = r.resolveWorkflowRun(event)
	case model.TriggerPullRequestTarget, model.TriggerPullRequestReview:
		params, err = r.resolvePullRequest(ctx, event)
	default:
		return nil, goerr.New("unexpected triggering event", goerr.T(types.ErrTagConfig), goerr.V("event", event.Type))
	}
	if err != nil {
		return nil, err
	}

	logger.Info("resolved parameters",
		"effective_event", params.EffectiveEvent,
		"head_ref", params.HeadRef,
		"head_sha", params.HeadSHA,
		"base_ref", params.BaseRef,
	)
	return params, nil
}

func (r *EventResolver) resolveWorkflowRun(event *model.TriggerEvent) (*model.ResolvedParams, error) {
	var payload github.WorkflowRunEvent
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return nil, goerr.Wrap(err, "failed to decode workflow_run payload", goerr.T(types.ErrTagMalformed))
	}

	run := payload.GetWorkflowRun()
	if run == nil {
		return nil, goerr.New("workflow_run payload has no run", goerr.T(types.ErrTagMalformed))
	}

	id := run.GetID()
	params := &model.ResolvedParams{
		WorkflowRun: &id,
		Conclusion:  run.Conclusion,
	}

	switch run.GetEvent() {
	case string(model.EventPullRequest):
		if len(run.PullRequests) != 1 {
			return nil, goerr.New("expected one pull request associated with run",
				goerr.T(types.ErrTagMalformed),
				goerr.V("run_id", id),
				goerr.V("count", len(run.PullRequests)),
			)
		}
		setPullRequest(params, githubinfra.ToRunPullRequest(run.PullRequests[0]))

	case string(model.EventPush):
		params.EffectiveEvent = model.EventPush
		params.HeadRef = strings.TrimPrefix(event.Ref, "refs/heads/")
		params.HeadSHA = event.SHA

	default:
		return nil, goerr.New("unexpected workflow run event",
			goerr.T(types.ErrTagMalformed),
			goerr.V("run_id", id),
			goerr.V("event", run.GetEvent()),
		)
	}

	return params, nil
}

func (r *EventResolver) resolvePullRequest(ctx context.Context, event *model.TriggerEvent) (*model.ResolvedParams, error) {
	// pull_request_target and pull_request_review payloads share this field
	var payload struct {
		PullRequest *github.PullRequest `json:"pull_request"`
	}
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return nil, goerr.Wrap(err, "failed to decode pull request payload", goerr.T(types.ErrTagMalformed))
	}
	if payload.PullRequest == nil {
		return nil, goerr.New("payload has no pull request", goerr.T(types.ErrTagMalformed), goerr.V("event", event.Type))
	}

	target := githubinfra.ToRunPullRequest(payload.PullRequest)

	runs, err := r.runs.ListWorkflowRuns(ctx, r.workflowFile, string(model.EventPullRequest), target.HeadRef)
	if err != nil {
		return nil, err
	}

	var latest *model.WorkflowRun
	for _, run := range runs {
		if run.FindPullRequest(target.Number) == nil {
			continue
		}
		if latest == nil || latest.CreatedAt.Before(run.CreatedAt) {
			latest = run
		}
	}

	params := &model.ResolvedParams{}
	pr := target
	if latest != nil {
		params.WorkflowRun = &latest.ID
		params.Conclusion = latest.Conclusion
		pr = *latest.FindPullRequest(target.Number)
	}
	setPullRequest(params, pr)

	return params, nil
}

func setPullRequest(params *model.ResolvedParams, pr model.RunPullRequest) {
	number := pr.Number
	params.EffectiveEvent = model.EventPullRequest
	params.PRNumber = &number
	params.HeadRef = pr.HeadRef
	params.HeadSHA = pr.HeadSHA
	params.BaseRef = pr.BaseRef
	params.BaseSHA = pr.BaseSHA
}
