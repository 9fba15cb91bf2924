package model

import "time"

// EventKind is the effective event a deploy-commit run handles
type EventKind string

const (
	EventPullRequest EventKind = "pull_request"
	EventPush        EventKind = "push"
)

// IsValid checks if the event kind is one deploy-commit can handle
func (k EventKind) IsValid() bool {
	switch k {
	case EventPullRequest, EventPush:
		return true
	default:
		return false
	}
}

// TriggerEventType is the GitHub event that started the workflow
type TriggerEventType string

const (
	TriggerWorkflowRun       TriggerEventType = "workflow_run"
	TriggerPullRequestTarget TriggerEventType = "pull_request_target"
	TriggerPullRequestReview TriggerEventType = "pull_request_review"
)

// IsSupported checks if parameters can be resolved from the trigger
func (t TriggerEventType) IsSupported() bool {
	switch t {
	case TriggerWorkflowRun, TriggerPullRequestTarget, TriggerPullRequestReview:
		return true
	default:
		return false
	}
}

// TriggerEvent is a triggering GitHub event as provided to the workflow
type TriggerEvent struct {
	Type       TriggerEventType
	Ref        string // GITHUB_REF
	SHA        string // GITHUB_SHA
	Owner      string
	Repo       string
	RawPayload []byte
}

// ResolvedParams are the deploy-commit parameters derived from a trigger
type ResolvedParams struct {
	WorkflowRun    *int64    `json:"workflow_run"`
	Conclusion     *string   `json:"conclusion"`
	EffectiveEvent EventKind `json:"effective_event"`
	PRNumber       *int      `json:"pr_number,omitempty"`
	HeadRef        string    `json:"head_ref"`
	HeadSHA        string    `json:"head_sha"`
	BaseRef        string    `json:"base_ref,omitempty"`
	BaseSHA        string    `json:"base_sha,omitempty"`
}

// RunPullRequest is a pull request as associated with a workflow run
type RunPullRequest struct {
	Number  int
	HeadRef string
	HeadSHA string
	BaseRef string
	BaseSHA string
}

// WorkflowRun is one run of a CI workflow
type WorkflowRun struct {
	ID           int64
	Conclusion   *string
	CreatedAt    time.Time
	PullRequests []RunPullRequest
}

// FindPullRequest returns the associated pull request with the given number
func (r *WorkflowRun) FindPullRequest(number int) *RunPullRequest {
	for i := range r.PullRequests {
		if r.PullRequests[i].Number == number {
			return &r.PullRequests[i]
		}
	}
	return nil
}
