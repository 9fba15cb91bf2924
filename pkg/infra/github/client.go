package github

import (
	"context"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

type client struct {
	api       *github.Client
	bot       *github.Client
	owner     string
	repo      string
	evaluator interfaces.EligibilityEvaluator
}

// Client is the GitHub-backed review service
type Client interface {
	interfaces.ReviewService
	interfaces.WorkflowRunLister
}

// Option is a functional option for the GitHub client
type Option func(*client)

// WithBotClient sets the client used to submit approving reviews. Without
// it Approve fails with ErrMissingBotToken.
func WithBotClient(bot *github.Client) Option {
	return func(c *client) {
		c.bot = bot
	}
}

// NewClient creates a review service for owner/repo
func NewClient(api *github.Client, owner, repo string, evaluator interfaces.EligibilityEvaluator, opts ...Option) Client {
	c := &client{
		api:       api,
		owner:     owner,
		repo:      repo,
		evaluator: evaluator,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTokenAPI creates a GitHub API client authenticated with a token
func NewTokenAPI(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// NewAppAPI creates a GitHub API client with App authentication
func NewAppAPI(appID, installationID int64, privateKey []byte) (*github.Client, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport",
			goerr.T(types.ErrTagConfig),
			goerr.V("app_id", appID),
			goerr.V("installation_id", installationID),
		)
	}

	return github.NewClient(&http.Client{Transport: itr}), nil
}

// EvaluatePullRequest fetches the pull request and all of its reviews and
// runs the eligibility rules over them
func (c *client) EvaluatePullRequest(ctx context.Context, number int) (*model.PullRequestEvaluation, error) {
	logger := ctxlog.From(ctx)

	pr, _, err := c.api.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get pull request",
			goerr.T(types.ErrTagExternal),
			goerr.V("repo", c.owner+"/"+c.repo),
			goerr.V("number", number),
		)
	}

	var reviews []*github.PullRequestReview
	opt := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.api.PullRequests.ListReviews(ctx, c.owner, c.repo, number, opt)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list pull request reviews",
				goerr.T(types.ErrTagExternal),
				goerr.V("number", number),
			)
		}
		reviews = append(reviews, page...)
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	raw, err := c.evaluator.Evaluate(ctx, pr, reviews)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate pull request rules", goerr.V("number", number))
	}

	eval, err := model.ParsePullRequestEvaluation(raw)
	if err != nil {
		return nil, err
	}

	logger.Info("pull request evaluated",
		"number", number,
		"eligible", eval.PRIsEligible,
		"may_be_eligible", eval.PRMayBeEligible,
		"criteria", eval.PREligibility,
	)

	return eval, nil
}

func (c *client) AddLabel(ctx context.Context, number int, label string) error {
	if _, _, err := c.api.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, []string{label}); err != nil {
		return goerr.Wrap(err, "failed to add label",
			goerr.T(types.ErrTagExternal),
			goerr.V("number", number),
			goerr.V("label", label),
		)
	}
	return nil
}

func (c *client) RemoveLabel(ctx context.Context, number int, label string) error {
	if _, err := c.api.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label); err != nil {
		return goerr.Wrap(err, "failed to remove label",
			goerr.T(types.ErrTagExternal),
			goerr.V("number", number),
			goerr.V("label", label),
		)
	}
	return nil
}

// Approve submits an approving review pinned to the evaluated head commit
func (c *client) Approve(ctx context.Context, number int, approval *model.Approval) error {
	if c.bot == nil {
		return goerr.Wrap(types.ErrMissingBotToken, "cannot approve pull request", goerr.V("number", number))
	}

	_, _, err := c.bot.PullRequests.CreateReview(ctx, c.owner, c.repo, number, &github.PullRequestReviewRequest{
		CommitID: github.Ptr(approval.CommitSHA),
		Body:     github.Ptr(approval.Body),
		Event:    github.Ptr("APPROVE"),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to approve pull request",
			goerr.T(types.ErrTagExternal),
			goerr.V("number", number),
			goerr.V("commit", approval.CommitSHA),
		)
	}

	ctxlog.From(ctx).Info("pull request approved", "number", number, "commit", approval.CommitSHA)
	return nil
}

// ListWorkflowRuns lists the runs of workflowFile triggered by event on branch
func (c *client) ListWorkflowRuns(ctx context.Context, workflowFile, event, branch string) ([]*model.WorkflowRun, error) {
	runs, _, err := c.api.Actions.ListWorkflowRunsByFileName(ctx, c.owner, c.repo, workflowFile, &github.ListWorkflowRunsOptions{
		Event:       event,
		Branch:      branch,
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list workflow runs",
			goerr.T(types.ErrTagExternal),
			goerr.V("workflow", workflowFile),
			goerr.V("branch", branch),
		)
	}

	result := make([]*model.WorkflowRun, 0, len(runs.WorkflowRuns))
	for _, run := range runs.WorkflowRuns {
		result = append(result, ToWorkflowRun(run))
	}
	return result, nil
}

// ToWorkflowRun converts an API workflow run
func ToWorkflowRun(run *github.WorkflowRun) *model.WorkflowRun {
	r := &model.WorkflowRun{
		ID:         run.GetID(),
		Conclusion: run.Conclusion,
		CreatedAt:  run.GetCreatedAt().Time,
	}
	for _, pr := range run.PullRequests {
		r.PullRequests = append(r.PullRequests, ToRunPullRequest(pr))
	}
	return r
}

// ToRunPullRequest converts an API pull request reference
func ToRunPullRequest(pr *github.PullRequest) model.RunPullRequest {
	return model.RunPullRequest{
		Number:  pr.GetNumber(),
		HeadRef: pr.GetHead().GetRef(),
		HeadSHA: pr.GetHead().GetSHA(),
		BaseRef: pr.GetBase().GetRef(),
		BaseSHA: pr.GetBase().GetSHA(),
	}
}
