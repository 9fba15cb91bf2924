package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

type deployUseCase struct {
	project   model.Project
	repo      interfaces.Repository
	review    interfaces.ReviewService
	versioner interfaces.ReleaseVersioner
	tracker   interfaces.ReleaseTracker
	reporter  interfaces.Reporter
	now       func() time.Time
}

// DeployOption is a functional option for the deploy use case
type DeployOption func(*deployUseCase)

// WithReleaseTracker enables release bookkeeping around the push
func WithReleaseTracker(tracker interfaces.ReleaseTracker) DeployOption {
	return func(uc *deployUseCase) {
		uc.tracker = tracker
	}
}

// WithReporter sets where step outputs and annotations are written
func WithReporter(reporter interfaces.Reporter) DeployOption {
	return func(uc *deployUseCase) {
		uc.reporter = reporter
	}
}

// WithClock replaces the clock used to name merge branches
func WithClock(now func() time.Time) DeployOption {
	return func(uc *deployUseCase) {
		uc.now = now
	}
}

// NewDeploy creates a new instance of DeployUseCase
func NewDeploy(
	project model.Project,
	repo interfaces.Repository,
	review interfaces.ReviewService,
	versioner interfaces.ReleaseVersioner,
	opts ...DeployOption,
) interfaces.DeployUseCase {
	uc := &deployUseCase{
		project:   project,
		repo:      repo,
		review:    review,
		versioner: versioner,
		reporter:  nopReporter{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// pushPlan is what the event-specific preparation hands to the push step
type pushPlan struct {
	sha  string
	eval *model.PullRequestEvaluation
}

// DeployCommit handles one pull request or push event end to end
func (uc *deployUseCase) DeployCommit(ctx context.Context, p *model.DeployParams) (*model.DeployResult, error) {
	logger := ctxlog.From(ctx)

	if err := uc.validateParams(ctx, p); err != nil {
		return nil, err
	}

	allowsPagesDeploy := uc.allowsPagesDeploy(p)

	if p.Event == model.EventPush && !allowsPagesDeploy {
		uc.reporter.Summary("", "Nothing to do for push to", p.BaseRef)
		return &model.DeployResult{Outcome: model.OutcomeNoop}, nil
	}

	uc.reporter.Notice("allows-pages-deploy", strconv.FormatBool(allowsPagesDeploy))
	if err := uc.reporter.Output("allows-pages-deploy", strconv.FormatBool(allowsPagesDeploy)); err != nil {
		return nil, err
	}

	var releaseVersion string
	if allowsPagesDeploy {
		version, err := uc.versioner.ReleaseVersion(ctx, p.DeployRevisionInfo)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compute release version")
		}
		releaseVersion = version
		uc.reporter.Summary("release", releaseVersion)

		consistent, err := uc.hasConsistentReleaseVersion(p, releaseVersion)
		if err != nil {
			return nil, err
		}
		if !consistent {
			if err := uc.reporter.Output("stale", "true"); err != nil {
				return nil, err
			}
			return &model.DeployResult{Outcome: model.OutcomeStale, ReleaseVersion: releaseVersion}, nil
		}
	}

	var (
		plan   *pushPlan
		result *model.DeployResult
		err    error
	)
	switch p.Event {
	case model.EventPullRequest:
		plan, result, err = uc.preparePullRequest(ctx, p)
	case model.EventPush:
		plan, result, err = uc.preparePush(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		result.ReleaseVersion = releaseVersion
		return result, nil
	}

	var deployTag *model.DeployTag
	if allowsPagesDeploy {
		deployTag, err = uc.prepareDeployCommit(ctx, p, plan.sha)
		if err != nil {
			return nil, err
		}
	} else if p.BaseRef == uc.project.SourceBranch {
		uc.reporter.Warning("Event targeting", p.BaseRef, "is not deployable:", describeParams(p))
	}

	if p.Event == model.EventPullRequest {
		if collaborator, _ := plan.eval.Criterion(model.CriterionApproverIsCollaborator); !collaborator {
			if err := uc.approve(ctx, p, plan.eval); err != nil {
				return nil, err
			}
		}
	}

	var release *model.ReleaseInfo
	if allowsPagesDeploy && uc.tracker != nil {
		release = &model.ReleaseInfo{
			Version:      releaseVersion,
			RunURL:       p.RunURL,
			SourceMapDir: filepath.Join(p.DeployDir, uc.project.SourceMapSubdir),
			CommitSHA:    plan.sha,
			DeployName:   strconv.Itoa(deployTag.Number),
			DryRun:       p.DryRun,
		}
		if err := uc.prepareRelease(ctx, release); err != nil {
			return nil, err
		}
	}

	if err := uc.repo.Push(ctx, uc.buildPushRequest(p, plan, deployTag)); err != nil {
		return nil, goerr.Wrap(err, "failed to push", goerr.V("sha", plan.sha))
	}

	if release != nil {
		if err := uc.finalizeRelease(ctx, release); err != nil {
			return nil, err
		}
	}

	logger.Info("Deploy commit pushed", "sha", plan.sha, "event", p.Event)
	uc.reporter.Summary("", "Successfully handled push")

	return &model.DeployResult{
		Outcome:        model.OutcomeSuccess,
		PushSHA:        plan.sha,
		ReleaseVersion: releaseVersion,
		DeployTag:      deployTag,
	}, nil
}

func (uc *deployUseCase) validateParams(ctx context.Context, p *model.DeployParams) error {
	for _, ref := range []string{p.HeadRef, p.BaseRef} {
		if err := uc.repo.ValidateBranchName(ctx, ref); err != nil {
			return goerr.Wrap(err, "invalid branch name", goerr.T(types.ErrTagConfig), goerr.V("ref", ref))
		}
	}

	switch p.Event {
	case model.EventPullRequest:
		if p.PRNumber == nil {
			return goerr.New("--pr-number is required when effective event is pull_request", goerr.T(types.ErrTagConfig))
		}

	case model.EventPush:
		if p.PRNumber != nil {
			return goerr.New("--pr-number is not allowed when effective event is push", goerr.T(types.ErrTagConfig))
		}
		if p.HeadRef != p.BaseRef {
			return goerr.New("head ref and base ref for push deploys should match",
				goerr.T(types.ErrTagConfig),
				goerr.V("head_ref", p.HeadRef),
				goerr.V("base_ref", p.BaseRef),
			)
		}

	default:
		return goerr.New("unexpected effective event", goerr.T(types.ErrTagConfig), goerr.V("event", p.Event))
	}

	return nil
}

func (uc *deployUseCase) allowsPagesDeploy(p *model.DeployParams) bool {
	return p.HasDeployArtifact() && p.BaseRef == uc.project.SourceBranch
}

func (uc *deployUseCase) hasConsistentReleaseVersion(p *model.DeployParams, releaseVersion string) (bool, error) {
	builtVersion, err := LoadBuiltReleaseVersion(filepath.Join(p.DeployDir, uc.project.TestMetadataFile))
	if err != nil {
		return false, err
	}

	if builtVersion != releaseVersion {
		uc.reporter.Warning("Unexpected release version from run")
		uc.reporter.Warning(fmt.Sprintf("Expected %q", builtVersion))
		uc.reporter.Warning(fmt.Sprintf("Run has  %q", releaseVersion))
		return false, nil
	}

	return true, nil
}

func (uc *deployUseCase) preparePullRequest(ctx context.Context, p *model.DeployParams) (*pushPlan, *model.DeployResult, error) {
	number := *p.PRNumber

	eval, err := uc.review.EvaluatePullRequest(ctx, number)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to evaluate pull request", goerr.V("pr_number", number))
	}

	if err := uc.reporter.Output("pr_eval", compactJSON(eval.Raw)); err != nil {
		return nil, nil, err
	}

	if eval.NeedsLabelSync() {
		if err := uc.syncPendingLabel(ctx, p, eval.PRMayBeEligible); err != nil {
			return nil, nil, err
		}
	}

	if !eval.PRIsEligible {
		if err := uc.reporter.Output("stale", "true"); err != nil {
			return nil, nil, err
		}
		uc.reporter.Summary("", "Pull request", number, "is not currently eligible to merge")
		return nil, &model.DeployResult{Outcome: model.OutcomeNotEligible}, nil
	}

	// Approval is decided from this criterion, so an eligible verdict must carry it
	if _, ok := eval.Criterion(model.CriterionApproverIsCollaborator); !ok {
		return nil, nil, goerr.New("pull request evaluation lacks eligibility criterion",
			goerr.T(types.ErrTagMalformed),
			goerr.V("pr_number", number),
			goerr.V("criterion", model.CriterionApproverIsCollaborator),
			goerr.V("raw", string(eval.Raw)),
		)
	}

	if err := uc.fetchDeployRefs(ctx, p); err != nil {
		return nil, nil, err
	}

	mergeRef := model.PullRequestMergeRef(number)
	if err := uc.repo.Fetch(ctx, p.Remote, "+"+mergeRef+":"+mergeRef); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to fetch merge ref", goerr.V("ref", mergeRef))
	}

	current, err := uc.currentPullRequestRevision(ctx, p, mergeRef)
	if err != nil {
		return nil, nil, err
	}

	sources := []model.NamedRevision{
		{Source: model.RevisionSourceCurrent, Revision: current},
		{Source: model.RevisionSourceEvaluated, Revision: model.RevisionFromEvaluation(eval)},
	}
	if p.DeployRevisionInfo != "" {
		built, err := LoadRevisionMetadata(p.DeployRevisionInfo)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, model.NamedRevision{Source: model.RevisionSourceBuilt, Revision: built})
	}

	consistent, mismatches := CheckRevisionConsistency(ctx, sources)
	if err := uc.reporter.Output("stale", strconv.FormatBool(!consistent)); err != nil {
		return nil, nil, err
	}
	if !consistent {
		return nil, &model.DeployResult{Outcome: model.OutcomeStale, Mismatches: mismatches}, nil
	}

	endGroup := uc.reporter.Group("Prepare merge commit")
	defer endGroup()

	branch := fmt.Sprintf("merge.%d.%s.%s",
		number,
		strings.ReplaceAll(p.HeadRef, "/", "-"),
		uc.now().UTC().Format("2006-01-02-15-04-05"),
	)

	sha, err := uc.repo.PrepareMergeCommit(ctx, &model.MergeCommitRequest{
		MergeRef:    mergeRef,
		Branch:      branch,
		ExpectedSHA: *current.MergeSHA,
		Message:     fmt.Sprintf("Merge pull request #%d from %s", number, eval.HeadRef),
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to prepare merge commit", goerr.V("pr_number", number))
	}

	return &pushPlan{sha: sha, eval: eval}, nil, nil
}

func (uc *deployUseCase) currentPullRequestRevision(ctx context.Context, p *model.DeployParams, mergeRef string) (*model.Revision, error) {
	baseSHA, err := uc.repo.ResolveCommit(ctx, remoteRef(p.Remote, p.BaseRef))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve base ref", goerr.V("ref", p.BaseRef))
	}
	headSHA, err := uc.repo.ResolveCommit(ctx, remoteRef(p.Remote, p.HeadRef))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve head ref", goerr.V("ref", p.HeadRef))
	}
	mergeSHA, err := uc.repo.ResolveCommit(ctx, mergeRef)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve merge ref", goerr.V("ref", mergeRef))
	}

	return model.NewPullRequestRevision(p.HeadRef, headSHA, p.BaseRef, baseSHA, mergeSHA), nil
}

func (uc *deployUseCase) preparePush(ctx context.Context, p *model.DeployParams) (*pushPlan, *model.DeployResult, error) {
	sha, err := uc.repo.ResolveCommit(ctx, p.HeadRef)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to resolve pushed ref", goerr.V("ref", p.HeadRef))
	}

	built, err := LoadRevisionMetadata(p.DeployRevisionInfo)
	if err != nil {
		return nil, nil, err
	}

	consistent, mismatches := CheckRevisionConsistency(ctx, []model.NamedRevision{
		{Source: model.RevisionSourceCurrent, Revision: model.NewPushRevision(p.HeadRef, sha)},
		{Source: model.RevisionSourceBuilt, Revision: built},
	})
	if err := uc.reporter.Output("stale", strconv.FormatBool(!consistent)); err != nil {
		return nil, nil, err
	}
	if !consistent {
		return nil, &model.DeployResult{Outcome: model.OutcomeStale, PushSHA: sha, Mismatches: mismatches}, nil
	}

	prior, err := uc.findPriorDeploy(ctx, p, sha)
	if err != nil {
		return nil, nil, err
	}
	if prior != nil {
		uc.reporter.Summary("", fmt.Sprintf("Source commit for %s (%s) already deployed via %s", p.HeadRef, sha, prior.TagName()))
		return nil, &model.DeployResult{Outcome: model.OutcomeAlreadyDeployed, PushSHA: sha, PriorDeploy: prior}, nil
	}

	if err := uc.fetchDeployRefs(ctx, p); err != nil {
		return nil, nil, err
	}

	return &pushPlan{sha: sha}, nil, nil
}

// findPriorDeploy looks for a deploy tag whose name records exactly sha
func (uc *deployUseCase) findPriorDeploy(ctx context.Context, p *model.DeployParams, sha string) (*model.RemoteRef, error) {
	pattern := model.DeployTagPattern(uc.project.PublishBranch, sha)

	refs, err := uc.repo.ListRemoteTags(ctx, p.Remote, pattern)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list deploy tags", goerr.V("pattern", pattern))
	}

	prefix := "deploy/" + uc.project.PublishBranch + "/"
	for i := range refs {
		name := refs[i].TagName()
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		number, tagSHA, ok := strings.Cut(rest, "-")
		if !ok || tagSHA != sha {
			continue
		}
		if _, err := strconv.Atoi(number); err != nil {
			continue
		}
		return &refs[i], nil
	}

	return nil, nil
}

func (uc *deployUseCase) fetchDeployRefs(ctx context.Context, p *model.DeployParams) error {
	if uc.allowsPagesDeploy(p) {
		// Full depth: the deploy number is derived from the publish branch length
		publish := uc.project.PublishBranch
		if err := uc.repo.Fetch(ctx, p.Remote, "+refs/heads/"+publish+":"+remoteRef(p.Remote, publish)); err != nil {
			return goerr.Wrap(err, "failed to fetch publish branch", goerr.V("branch", publish))
		}
	}

	if p.Event != model.EventPullRequest {
		return nil
	}

	baseSpec := "+refs/heads/" + p.BaseRef + ":" + remoteRef(p.Remote, p.BaseRef)
	headSpec := "+refs/heads/" + p.HeadRef + ":" + remoteRef(p.Remote, p.HeadRef)

	if err := uc.repo.Fetch(ctx, p.Remote, baseSpec, "--depth=1"); err != nil {
		return goerr.Wrap(err, "failed to fetch base ref", goerr.V("ref", p.BaseRef))
	}
	if err := uc.repo.Fetch(ctx, p.Remote, headSpec, "--shallow-exclude=refs/heads/"+p.BaseRef); err != nil {
		return goerr.Wrap(err, "failed to fetch head ref", goerr.V("ref", p.HeadRef))
	}
	if err := uc.repo.Fetch(ctx, p.Remote, headSpec, "--deepen=1"); err != nil {
		return goerr.Wrap(err, "failed to deepen head ref", goerr.V("ref", p.HeadRef))
	}

	return nil
}

func (uc *deployUseCase) syncPendingLabel(ctx context.Context, p *model.DeployParams, pending bool) error {
	number, label := *p.PRNumber, uc.project.PendingLabel

	if p.DryRun {
		action := "delete [dry-run]"
		if pending {
			action = "post [dry-run]"
		}
		uc.reporter.Notice(action, "PR", number, "label", label)
		return nil
	}

	if pending {
		if err := uc.review.AddLabel(ctx, number, label); err != nil {
			return goerr.Wrap(err, "failed to add pending label", goerr.V("pr_number", number), goerr.V("label", label))
		}
		return nil
	}

	if err := uc.review.RemoveLabel(ctx, number, label); err != nil {
		return goerr.Wrap(err, "failed to remove pending label", goerr.V("pr_number", number), goerr.V("label", label))
	}
	return nil
}

func (uc *deployUseCase) prepareDeployCommit(ctx context.Context, p *model.DeployParams, sha string) (*model.DeployTag, error) {
	endGroup := uc.reporter.Group("Prepare deploy")
	defer endGroup()

	publish := uc.project.PublishBranch

	// Monotonic up to history rewrites of the publish branch
	count, err := uc.repo.CountCommits(ctx, remoteRef(p.Remote, publish))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count publish branch commits", goerr.V("branch", publish))
	}

	tag := &model.DeployTag{Branch: publish, Number: count + 1, SHA: sha}

	description := strconv.Itoa(tag.Number)
	if p.PRNumber != nil {
		description = fmt.Sprintf("%d from PR #%d", tag.Number, *p.PRNumber)
	}

	err = uc.repo.PrepareDeployCommit(ctx, &model.DeployCommitRequest{
		Remote:        p.Remote,
		PublishBranch: publish,
		ContentDir:    p.DeployDir,
		ExcludesFile:  uc.project.DeployIgnoreFile,
		SourceSHA:     sha,
		CommitMessage: fmt.Sprintf("Deploy to GitHub Pages [%s]", description),
		Tag:           tag,
		TagMessage:    fmt.Sprintf("Deploy %s triggered by %s", description, strings.ReplaceAll(string(p.Event), "_", " ")),
		RunURL:        p.RunURL,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare deploy commit", goerr.V("tag", tag.Name()))
	}

	return tag, nil
}

func (uc *deployUseCase) approve(ctx context.Context, p *model.DeployParams, eval *model.PullRequestEvaluation) error {
	criteria, err := json.MarshalIndent(eval.PREligibility, "", "    ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode eligibility criteria")
	}

	approval := &model.Approval{
		CommitSHA: eval.HeadSHA,
		Body: "Approving [automatically] based on the following criteria:\n\n" +
			"```json\n" + string(criteria) + "\n```\n\n" +
			"[automatically]: " + p.RunURL,
	}

	if p.DryRun {
		uc.reporter.Notice("post [dry-run]", "approve PR", *p.PRNumber, "at", approval.CommitSHA)
		return nil
	}

	if err := uc.review.Approve(ctx, *p.PRNumber, approval); err != nil {
		return goerr.Wrap(err, "failed to approve pull request", goerr.V("pr_number", *p.PRNumber))
	}
	return nil
}

func (uc *deployUseCase) prepareRelease(ctx context.Context, release *model.ReleaseInfo) error {
	endGroup := uc.reporter.Group("Initialize release")
	defer endGroup()

	if err := uc.tracker.PrepareRelease(ctx, release); err != nil {
		return goerr.Wrap(err, "failed to prepare release", goerr.V("version", release.Version))
	}
	return nil
}

func (uc *deployUseCase) finalizeRelease(ctx context.Context, release *model.ReleaseInfo) error {
	endGroup := uc.reporter.Group("Finalize release and deploy")
	defer endGroup()

	if err := uc.tracker.FinalizeRelease(ctx, release); err != nil {
		return goerr.Wrap(err, "failed to finalize release", goerr.V("version", release.Version))
	}
	return nil
}

func (uc *deployUseCase) buildPushRequest(p *model.DeployParams, plan *pushPlan, tag *model.DeployTag) *model.PushRequest {
	req := &model.PushRequest{
		Remote: p.Remote,
		DryRun: p.DryRun,
	}

	switch p.Event {
	case model.EventPullRequest:
		req.RefSpecs = []string{
			plan.sha + ":refs/heads/" + p.BaseRef,
			":refs/heads/" + p.HeadRef,
		}
		req.Leases = []model.Lease{{Ref: "refs/heads/" + p.HeadRef, ExpectedSHA: plan.eval.HeadSHA}}

	case model.EventPush:
		req.RefSpecs = []string{plan.sha + ":refs/heads/" + p.HeadRef}
		req.Leases = []model.Lease{{Ref: "refs/heads/" + p.HeadRef, ExpectedSHA: plan.sha}}
	}

	if tag != nil {
		publish := uc.project.PublishBranch
		req.RefSpecs = append(req.RefSpecs, publish+":"+publish, tag.Ref()+":"+tag.Ref())
	}

	return req
}

func remoteRef(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.ReplaceAll(string(raw), "\n", " ")
	}
	return buf.String()
}

func describeParams(p *model.DeployParams) string {
	pr := "none"
	if p.PRNumber != nil {
		pr = strconv.Itoa(*p.PRNumber)
	}
	return fmt.Sprintf("event=%s head=%s base=%s pr=%s deploy_dir=%q revision_info=%q",
		p.Event, p.HeadRef, p.BaseRef, pr, p.DeployDir, p.DeployRevisionInfo)
}

type nopReporter struct{}

func (nopReporter) Output(string, string) error { return nil }
func (nopReporter) Notice(...any)               {}
func (nopReporter) Warning(...any)              {}
func (nopReporter) Error(...any)                {}
func (nopReporter) Summary(string, ...any)      {}
func (nopReporter) Group(string) func()         { return func() {} }
