package git_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	"github.com/m-mizutani/herder/pkg/infra/git"
	"github.com/m-mizutani/herder/pkg/utils/command"
)

// MockRunner is a mock implementation of command.Runner
type MockRunner struct {
	runFunc func(ctx context.Context, cmd *command.Cmd) (*command.Result, error)
	cmds    []*command.Cmd
}

func (m *MockRunner) Run(ctx context.Context, cmd *command.Cmd) (*command.Result, error) {
	m.cmds = append(m.cmds, cmd)
	if m.runFunc != nil {
		return m.runFunc(ctx, cmd)
	}
	return &command.Result{}, nil
}

func TestFetchArgs(t *testing.T) {
	runner := &MockRunner{}
	client := git.New("/repo", git.WithRunner(runner))

	err := client.Fetch(context.Background(), "origin", "+refs/heads/develop:refs/remotes/origin/develop", "--depth=1")
	gt.NoError(t, err)

	gt.A(t, runner.cmds).Length(1)
	gt.Equal(t, runner.cmds[0].Name, "git")
	gt.Equal(t, runner.cmds[0].Dir, "/repo")
	gt.Equal(t, runner.cmds[0].Args, []string{
		"fetch", "--no-tags", "--depth=1", "--", "origin", "+refs/heads/develop:refs/remotes/origin/develop",
	})
}

func TestResolveCommit(t *testing.T) {
	runner := &MockRunner{
		runFunc: func(ctx context.Context, cmd *command.Cmd) (*command.Result, error) {
			gt.Equal(t, cmd.Args, []string{"rev-parse", "--verify", "--end-of-options", "develop^{commit}"})
			return &command.Result{Stdout: "abc123\n"}, nil
		},
	}
	client := git.New("/repo", git.WithRunner(runner))

	sha, err := client.ResolveCommit(context.Background(), "develop")
	gt.NoError(t, err)
	gt.Equal(t, sha, "abc123")
}

func TestListRemoteTags(t *testing.T) {
	runner := &MockRunner{
		runFunc: func(ctx context.Context, cmd *command.Cmd) (*command.Result, error) {
			gt.Equal(t, cmd.Args, []string{"ls-remote", "--tags", "origin", "deploy/master/*-abc"})
			return &command.Result{Stdout: "111\trefs/tags/deploy/master/3-abc\n222\trefs/tags/deploy/master/3-abc^{}\n"}, nil
		},
	}
	client := git.New("/repo", git.WithRunner(runner))

	refs, err := client.ListRemoteTags(context.Background(), "origin", "deploy/master/*-abc")
	gt.NoError(t, err)
	gt.Equal(t, refs, []model.RemoteRef{
		{SHA: "111", Name: "refs/tags/deploy/master/3-abc"},
		{SHA: "222", Name: "refs/tags/deploy/master/3-abc^{}"},
	})
}

func TestPush(t *testing.T) {
	t.Run("builds atomic push with leases", func(t *testing.T) {
		runner := &MockRunner{}
		client := git.New("/repo", git.WithRunner(runner))

		err := client.Push(context.Background(), &model.PushRequest{
			Remote:   "origin",
			RefSpecs: []string{"abc:refs/heads/develop", "master:master"},
			Leases:   []model.Lease{{Ref: "refs/heads/develop", ExpectedSHA: "abc"}},
			DryRun:   true,
		})
		gt.NoError(t, err)
		gt.Equal(t, runner.cmds[0].Args, []string{
			"push", "--dry-run", "--atomic", "origin",
			"abc:refs/heads/develop", "master:master",
			"--force-with-lease=refs/heads/develop:abc",
		})
	})

	t.Run("stale lease is a concurrent update", func(t *testing.T) {
		runner := &MockRunner{
			runFunc: func(ctx context.Context, cmd *command.Cmd) (*command.Result, error) {
				return &command.Result{Stderr: " ! [rejected]        develop -> develop (stale info)\n"}, errors.New("exit status 1")
			},
		}
		client := git.New("/repo", git.WithRunner(runner))

		err := client.Push(context.Background(), &model.PushRequest{Remote: "origin"})
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.ErrTagConcurrentUpdate))
		gt.True(t, goerr.HasTag(err, types.ErrTagExternal))
	})

	t.Run("other failures are external only", func(t *testing.T) {
		runner := &MockRunner{
			runFunc: func(ctx context.Context, cmd *command.Cmd) (*command.Result, error) {
				return &command.Result{Stderr: "fatal: unable to access\n"}, errors.New("exit status 128")
			},
		}
		client := git.New("/repo", git.WithRunner(runner))

		err := client.Push(context.Background(), &model.PushRequest{Remote: "origin"})
		gt.Error(t, err)
		gt.False(t, goerr.HasTag(err, types.ErrTagConcurrentUpdate))
		gt.True(t, goerr.HasTag(err, types.ErrTagExternal))
	})
}

// gitRepo creates a repository with one commit on develop and an empty-ish
// master branch, returning its path
func gitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not available")
	}

	t.Setenv("GIT_AUTHOR_NAME", "Test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	dir := t.TempDir()
	run := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
		}
		return strings.TrimSpace(string(out))
	}

	run("init", "-q", "-b", "master")
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "stale.html"), []byte("old"), 0644))
	run("add", "stale.html")
	run("commit", "-q", "-m", "initial publish")
	run("update-ref", "refs/remotes/origin/master", "HEAD")

	run("checkout", "-q", "-b", "develop")
	gt.NoError(t, os.WriteFile(filepath.Join(dir, ".deploy-gitignore"), []byte("*.map\n"), 0644))
	run("add", ".deploy-gitignore")
	run("commit", "-q", "-m", "source change")

	return dir
}

func TestClientWithRepository(t *testing.T) {
	dir := gitRepo(t)
	ctx := context.Background()
	client := git.New(dir)

	t.Run("validates branch names", func(t *testing.T) {
		gt.NoError(t, client.ValidateBranchName(ctx, "feature/x"))
		gt.Error(t, client.ValidateBranchName(ctx, "bad..name"))
	})

	t.Run("counts commits", func(t *testing.T) {
		n, err := client.CountCommits(ctx, "develop")
		gt.NoError(t, err)
		gt.Equal(t, n, 2)
	})

	t.Run("prepares deploy commit", func(t *testing.T) {
		sha, err := client.ResolveCommit(ctx, "develop")
		gt.NoError(t, err)

		content := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(content, "index.html"), []byte("new"), 0644))
		gt.NoError(t, os.WriteFile(filepath.Join(content, "app.js.map"), []byte("{}"), 0644))

		tag := &model.DeployTag{Branch: "master", Number: 2, SHA: sha}
		err = client.PrepareDeployCommit(ctx, &model.DeployCommitRequest{
			Remote:        "origin",
			PublishBranch: "master",
			ContentDir:    content,
			ExcludesFile:  ".deploy-gitignore",
			SourceSHA:     sha,
			CommitMessage: "Deploy to GitHub Pages [2]",
			Tag:           tag,
			TagMessage:    "Deploy 2 triggered by push",
			RunURL:        "https://example.com/run",
		})
		gt.NoError(t, err)

		out, err := exec.Command("git", "-C", dir, "ls-tree", "--name-only", tag.Name()).Output()
		gt.NoError(t, err)
		gt.Equal(t, strings.Fields(string(out)), []string{".nojekyll", "index.html"})

		msg, err := exec.Command("git", "-C", dir, "log", "-1", "--format=%B", "master").Output()
		gt.NoError(t, err)
		gt.String(t, string(msg)).Contains("Source commit for this deployment:")
		gt.String(t, string(msg)).Contains(sha)
	})
}
