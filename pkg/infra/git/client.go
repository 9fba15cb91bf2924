package git

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/otiai10/copy"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	"github.com/m-mizutani/herder/pkg/utils/command"
)

// Client drives the git command line in a local clone
type Client struct {
	runner command.Runner
	git    string
	dir    string
}

var _ interfaces.Repository = (*Client)(nil)

// Option is a functional option for Client
type Option func(*Client)

// WithRunner replaces the command runner
func WithRunner(r command.Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithGitPath sets the git executable
func WithGitPath(path string) Option {
	return func(c *Client) {
		c.git = path
	}
}

// New creates a git client operating on the repository at dir
func New(dir string, opts ...Option) *Client {
	c := &Client{
		runner: command.Exec{},
		git:    "git",
		dir:    dir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	return c.runCmd(ctx, &command.Cmd{Args: args})
}

func (c *Client) runCmd(ctx context.Context, cmd *command.Cmd) (string, error) {
	cmd.Name = c.git
	if cmd.Dir == "" {
		cmd.Dir = c.dir
	}

	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return "", goerr.Wrap(err, "git command failed", goerr.T(types.ErrTagExternal))
	}
	return res.Stdout, nil
}

func (c *Client) ValidateBranchName(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "check-ref-format", "--branch", name); err != nil {
		return goerr.Wrap(err, "not a valid branch name", goerr.V("name", name))
	}
	return nil
}

func (c *Client) ResolveCommit(ctx context.Context, rev string) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--verify", "--end-of-options", rev+"^{commit}")
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve commit", goerr.V("rev", rev))
	}
	return strings.TrimSuffix(out, "\n"), nil
}

func (c *Client) Fetch(ctx context.Context, remote, refspec string, opts ...string) error {
	args := append([]string{"fetch", "--no-tags"}, opts...)
	args = append(args, "--", remote, refspec)

	if _, err := c.run(ctx, args...); err != nil {
		return goerr.Wrap(err, "failed to fetch", goerr.V("remote", remote), goerr.V("refspec", refspec))
	}
	return nil
}

func (c *Client) CountCommits(ctx context.Context, rev string) (int, error) {
	out, err := c.run(ctx, "rev-list", "--count", rev)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count commits", goerr.V("rev", rev))
	}

	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, goerr.Wrap(err, "unexpected rev-list output", goerr.V("output", out))
	}
	return n, nil
}

func (c *Client) ListRemoteTags(ctx context.Context, remote, pattern string) ([]model.RemoteRef, error) {
	out, err := c.run(ctx, "ls-remote", "--tags", remote, pattern)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list remote tags", goerr.V("remote", remote), goerr.V("pattern", pattern))
	}

	var refs []model.RemoteRef
	for _, line := range strings.Split(out, "\n") {
		sha, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		refs = append(refs, model.RemoteRef{SHA: sha, Name: name})
	}
	return refs, nil
}

// withWorktree checks rev out into a temporary worktree for the duration of fn
func (c *Client) withWorktree(ctx context.Context, rev string, args []string, fn func(dir string) error) (err error) {
	tmp, err := os.MkdirTemp("", "worktree.")
	if err != nil {
		return goerr.Wrap(err, "failed to create worktree directory")
	}
	defer os.RemoveAll(tmp)

	addArgs := append([]string{"worktree", "add"}, args...)
	addArgs = append(addArgs, "--", tmp, rev)
	if _, err := c.run(ctx, addArgs...); err != nil {
		return goerr.Wrap(err, "failed to add worktree", goerr.V("rev", rev))
	}

	defer func() {
		if _, rmErr := c.run(ctx, "worktree", "remove", "-f", tmp); rmErr != nil {
			if err == nil {
				err = goerr.Wrap(rmErr, "failed to remove worktree", goerr.V("dir", tmp))
			} else {
				ctxlog.From(ctx).Warn("failed to remove worktree", "dir", tmp, "error", rmErr)
			}
		}
	}()

	return fn(tmp)
}

// PrepareMergeCommit checks the merge ref out on a new branch and rewrites
// the message of its tip. The committer date is kept so the rewrite is
// reproducible.
func (c *Client) PrepareMergeCommit(ctx context.Context, req *model.MergeCommitRequest) (string, error) {
	err := c.withWorktree(ctx, req.MergeRef, []string{"-b", req.Branch}, func(dir string) error {
		out, err := c.runCmd(ctx, &command.Cmd{
			Args: []string{"show", "--no-patch", "--format=%H%n%cD", "HEAD"},
			Dir:  dir,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to inspect merge commit")
		}

		sha, date, _ := strings.Cut(strings.TrimSuffix(out, "\n"), "\n")
		if sha != req.ExpectedSHA {
			return goerr.New("merge ref moved after consistency check",
				goerr.T(types.ErrTagConcurrentUpdate),
				goerr.V("ref", req.MergeRef),
				goerr.V("expected", req.ExpectedSHA),
				goerr.V("actual", sha),
			)
		}

		_, err = c.runCmd(ctx, &command.Cmd{
			Args:  []string{"commit", "--amend", "--no-edit", "-m", req.Message},
			Dir:   dir,
			Env:   []string{"GIT_COMMITTER_DATE=" + date},
			Unset: identityEnv,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to rewrite merge commit message")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return c.ResolveCommit(ctx, req.Branch)
}

var identityEnv = []string{
	"GIT_AUTHOR_NAME", "GIT_AUTHOR_EMAIL", "GIT_AUTHOR_DATE",
	"GIT_COMMITTER_NAME", "GIT_COMMITTER_EMAIL", "GIT_COMMITTER_DATE",
}

// PrepareDeployCommit replaces the publish branch tree with the built
// content in a single commit and tags it. The worktree is created without a
// checkout, so files absent from the content are removed by the commit.
func (c *Client) PrepareDeployCommit(ctx context.Context, req *model.DeployCommitRequest) error {
	source, err := c.run(ctx, "show", "--no-patch", "--format=fuller", req.SourceSHA)
	if err != nil {
		return goerr.Wrap(err, "failed to describe source commit", goerr.V("sha", req.SourceSHA))
	}

	excludes := req.ExcludesFile
	if !filepath.IsAbs(excludes) {
		excludes = filepath.Join(c.dir, excludes)
	}
	if abs, err := filepath.Abs(excludes); err == nil {
		excludes = abs
	}

	base := "refs/remotes/" + req.Remote + "/" + req.PublishBranch
	return c.withWorktree(ctx, base, []string{"--no-checkout", "-B", req.PublishBranch}, func(dir string) error {
		if err := copy.Copy(req.ContentDir, dir); err != nil {
			return goerr.Wrap(err, "failed to copy deploy content", goerr.V("src", req.ContentDir))
		}

		if err := os.WriteFile(filepath.Join(dir, ".nojekyll"), nil, 0644); err != nil {
			return goerr.Wrap(err, "failed to create .nojekyll")
		}

		steps := [][]string{
			{"-c", "core.excludesfile=" + excludes, "add", "--", "."},
			{"-c", "core.excludesfile=" + excludes, "commit", "--allow-empty",
				"-m", req.CommitMessage,
				"-m", "Source commit for this deployment:",
				"-m", source,
			},
			{"tag", "-a", req.Tag.Name(), req.PublishBranch, "-m", req.TagMessage, "-m", req.RunURL},
		}
		for _, args := range steps {
			if _, err := c.runCmd(ctx, &command.Cmd{Args: args, Dir: dir}); err != nil {
				return goerr.Wrap(err, "failed to create deploy commit", goerr.V("tag", req.Tag.Name()))
			}
		}
		return nil
	})
}

// Push performs a single atomic push. A rejected lease is reported with
// ErrTagConcurrentUpdate.
func (c *Client) Push(ctx context.Context, req *model.PushRequest) error {
	args := []string{"push"}
	if req.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, "--atomic", req.Remote)
	args = append(args, req.RefSpecs...)
	for _, lease := range req.Leases {
		args = append(args, "--force-with-lease="+lease.String())
	}

	res, err := c.runner.Run(ctx, &command.Cmd{Name: c.git, Args: args, Dir: c.dir})
	if err != nil {
		opts := []goerr.Option{goerr.T(types.ErrTagExternal), goerr.V("remote", req.Remote)}
		if res != nil && strings.Contains(res.Stderr, "stale info") {
			opts = append(opts, goerr.T(types.ErrTagConcurrentUpdate))
		}
		return goerr.Wrap(err, "failed to push", opts...)
	}

	ctxlog.From(ctx).Info("pushed", "remote", req.Remote, "refspecs", req.RefSpecs, "dry_run", req.DryRun)
	return nil
}
