package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	githubinfra "github.com/m-mizutani/herder/pkg/infra/github"
)

// MockEvaluator is a mock implementation of EligibilityEvaluator
type MockEvaluator struct {
	evaluateFunc func(ctx context.Context, pullRequest, reviews any) ([]byte, error)
}

func (m *MockEvaluator) Evaluate(ctx context.Context, pullRequest, reviews any) ([]byte, error) {
	if m.evaluateFunc != nil {
		return m.evaluateFunc(ctx, pullRequest, reviews)
	}
	return nil, errors.New("mock not configured")
}

func newAPI(t *testing.T, mux *http.ServeMux) *github.Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	api := github.NewClient(nil)
	u, err := url.Parse(server.URL + "/")
	gt.NoError(t, err)
	api.BaseURL = u
	return api
}

func TestClient_EvaluatePullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/wabain/site/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"number": 42, "head": {"ref": "feature", "sha": "h"}, "base": {"ref": "develop", "sha": "b"}}`))
	})
	mux.HandleFunc("GET /repos/wabain/site/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`[{"id": 2, "state": "APPROVED"}]`))
			return
		}
		w.Header().Set("Link", `<`+"http://"+r.Host+r.URL.Path+`?page=2>; rel="next"`)
		_, _ = w.Write([]byte(`[{"id": 1, "state": "COMMENTED"}]`))
	})

	evaluator := &MockEvaluator{
		evaluateFunc: func(ctx context.Context, pullRequest, reviews any) ([]byte, error) {
			pr, ok := pullRequest.(*github.PullRequest)
			gt.True(t, ok)
			gt.Equal(t, pr.GetHead().GetSHA(), "h")

			rs, ok := reviews.([]*github.PullRequestReview)
			gt.True(t, ok)
			gt.A(t, rs).Length(2)

			return []byte(`{"head_ref": "feature", "head_sha": "h", "base_ref": "develop", "merge_sha": "m",
				"merge_pending_label_present": false, "pr_is_eligible": true, "pr_may_be_eligible": true,
				"pr_eligibility": {"approver_is_collaborator": true}}`), nil
		},
	}

	client := githubinfra.NewClient(newAPI(t, mux), "wabain", "site", evaluator)
	eval, err := client.EvaluatePullRequest(context.Background(), 42)
	gt.NoError(t, err)
	gt.True(t, eval.PRIsEligible)
	gt.Equal(t, *eval.MergeSHA, "m")
	collaborator, ok := eval.Criterion(model.CriterionApproverIsCollaborator)
	gt.True(t, ok)
	gt.True(t, collaborator)
}

func TestClient_EvaluatePullRequest_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/wabain/site/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	})

	client := githubinfra.NewClient(newAPI(t, mux), "wabain", "site", &MockEvaluator{})
	_, err := client.EvaluatePullRequest(context.Background(), 42)
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("failed to get pull request")
}

func TestClient_Labels(t *testing.T) {
	var added []string
	var removed string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/wabain/site/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gt.NoError(t, json.Unmarshal(body, &added))
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("DELETE /repos/wabain/site/issues/7/labels/{label}", func(w http.ResponseWriter, r *http.Request) {
		removed = r.PathValue("label")
		w.WriteHeader(http.StatusOK)
	})

	client := githubinfra.NewClient(newAPI(t, mux), "wabain", "site", &MockEvaluator{})
	ctx := context.Background()

	gt.NoError(t, client.AddLabel(ctx, 7, "merge-pending"))
	gt.Equal(t, added, []string{"merge-pending"})

	gt.NoError(t, client.RemoveLabel(ctx, 7, "merge-pending"))
	gt.Equal(t, removed, "merge-pending")
}

func TestClient_Approve(t *testing.T) {
	t.Run("requires bot client", func(t *testing.T) {
		client := githubinfra.NewClient(github.NewClient(nil), "wabain", "site", &MockEvaluator{})

		err := client.Approve(context.Background(), 7, &model.Approval{CommitSHA: "h", Body: "ok"})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrMissingBotToken))
	})

	t.Run("submits review with bot client", func(t *testing.T) {
		var req github.PullRequestReviewRequest

		mux := http.NewServeMux()
		mux.HandleFunc("POST /repos/wabain/site/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			gt.NoError(t, json.Unmarshal(body, &req))
			_, _ = w.Write([]byte(`{"id": 1}`))
		})

		client := githubinfra.NewClient(github.NewClient(nil), "wabain", "site", &MockEvaluator{},
			githubinfra.WithBotClient(newAPI(t, mux)),
		)

		err := client.Approve(context.Background(), 7, &model.Approval{CommitSHA: "h", Body: "looks good"})
		gt.NoError(t, err)
		gt.Equal(t, req.GetCommitID(), "h")
		gt.Equal(t, req.GetEvent(), "APPROVE")
		gt.Equal(t, req.GetBody(), "looks good")
	})
}

func TestClient_ListWorkflowRuns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/wabain/site/actions/workflows/validate.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Query().Get("event"), "pull_request")
		gt.Equal(t, r.URL.Query().Get("branch"), "feature")
		gt.Equal(t, r.URL.Query().Get("per_page"), "100")
		_, _ = w.Write([]byte(`{"total_count": 1, "workflow_runs": [{
			"id": 99, "conclusion": "success", "created_at": "2024-03-01T00:00:00Z",
			"pull_requests": [{"number": 7, "head": {"ref": "feature", "sha": "h"}, "base": {"ref": "develop", "sha": "b"}}]
		}]}`))
	})

	client := githubinfra.NewClient(newAPI(t, mux), "wabain", "site", &MockEvaluator{})
	runs, err := client.ListWorkflowRuns(context.Background(), "validate.yml", "pull_request", "feature")
	gt.NoError(t, err)
	gt.A(t, runs).Length(1)
	gt.Equal(t, runs[0].ID, int64(99))
	gt.Equal(t, *runs[0].Conclusion, "success")
	gt.Equal(t, runs[0].PullRequests, []model.RunPullRequest{
		{Number: 7, HeadRef: "feature", HeadSHA: "h", BaseRef: "develop", BaseSHA: "b"},
	})
}
