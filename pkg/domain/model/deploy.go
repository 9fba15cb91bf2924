package model

import (
	"fmt"
	"strings"
)

// DeployParams describes one deploy-commit invocation
type DeployParams struct {
	Remote             string
	HeadRef            string
	BaseRef            string
	Event              EventKind
	PRNumber           *int
	RunURL             string
	DeployDir          string
	DeployRevisionInfo string
	OutputsFile        string
	DryRun             bool
}

// HasDeployArtifact reports whether both a built site and its revision
// info were supplied. Both are needed to publish.
func (p *DeployParams) HasDeployArtifact() bool {
	return p.DeployDir != "" && p.DeployRevisionInfo != ""
}

// Outcome is the terminal state of a deploy-commit run
type Outcome string

const (
	OutcomeNoop            Outcome = "noop"
	OutcomeStale           Outcome = "stale"
	OutcomeNotEligible     Outcome = "not_eligible"
	OutcomeAlreadyDeployed Outcome = "already_deployed"
	OutcomeSuccess         Outcome = "success"
)

// DeployResult is returned by a deploy-commit run that did not fail
type DeployResult struct {
	Outcome        Outcome
	PushSHA        string
	ReleaseVersion string
	DeployTag      *DeployTag
	PriorDeploy    *RemoteRef
	Mismatches     []RevisionMismatch
}

// DeployTag names a numbered deployment of a source commit
type DeployTag struct {
	Branch string
	Number int
	SHA    string
}

// Name returns the tag name, deploy/<branch>/<number>-<sha>
func (t *DeployTag) Name() string {
	return fmt.Sprintf("deploy/%s/%d-%s", t.Branch, t.Number, t.SHA)
}

// Ref returns the fully qualified tag ref
func (t *DeployTag) Ref() string {
	return "refs/tags/" + t.Name()
}

// DeployTagPattern matches every deploy tag of sha on branch
func DeployTagPattern(branch, sha string) string {
	return fmt.Sprintf("deploy/%s/*-%s", branch, sha)
}

// RemoteRef is one line of ls-remote output
type RemoteRef struct {
	SHA  string
	Name string
}

// TagName strips the refs/tags/ prefix and any peeled suffix
func (r *RemoteRef) TagName() string {
	return strings.TrimSuffix(strings.TrimPrefix(r.Name, "refs/tags/"), "^{}")
}

// Lease is a force-with-lease precondition: Ref must still point at ExpectedSHA
type Lease struct {
	Ref         string
	ExpectedSHA string
}

func (l Lease) String() string {
	return l.Ref + ":" + l.ExpectedSHA
}

// PushRequest is a single atomic push
type PushRequest struct {
	Remote   string
	RefSpecs []string
	Leases   []Lease
	DryRun   bool
}

// MergeCommitRequest asks the repository to materialize the merge ref of a
// pull request on a new local branch with a rewritten commit message
type MergeCommitRequest struct {
	MergeRef    string
	Branch      string
	ExpectedSHA string
	Message     string
}

// DeployCommitRequest asks the repository to commit built content onto the
// publish branch and tag the result
type DeployCommitRequest struct {
	Remote        string
	PublishBranch string
	ContentDir    string
	ExcludesFile  string
	SourceSHA     string
	CommitMessage string
	Tag           *DeployTag
	TagMessage    string
	RunURL        string
}

// PullRequestMergeRef returns the ref GitHub maintains for the test merge
func PullRequestMergeRef(number int) string {
	return fmt.Sprintf("refs/pull/%d/merge", number)
}
