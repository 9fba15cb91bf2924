package sentrycli

import (
	"context"
	"path/filepath"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	"github.com/m-mizutani/herder/pkg/utils/command"
)

// Tracker records releases and deploys with sentry-cli
type Tracker struct {
	runner      command.Runner
	path        string
	repo        string
	ignoreFile  string
	urlPrefix   string
	environment string
}

var _ interfaces.ReleaseTracker = (*Tracker)(nil)

// Option is a functional option for Tracker
type Option func(*Tracker)

// WithRunner replaces the command runner
func WithRunner(r command.Runner) Option {
	return func(t *Tracker) {
		t.runner = r
	}
}

// WithPath sets the sentry-cli executable
func WithPath(path string) Option {
	return func(t *Tracker) {
		t.path = path
	}
}

// WithEnvironment sets the environment deploys are recorded in
func WithEnvironment(env string) Option {
	return func(t *Tracker) {
		t.environment = env
	}
}

// New creates a tracker for the project
func New(project model.Project, opts ...Option) *Tracker {
	ignoreFile, err := filepath.Abs(project.DeployIgnoreFile)
	if err != nil {
		ignoreFile = project.DeployIgnoreFile
	}

	t := &Tracker{
		runner:      command.Exec{},
		path:        "sentry-cli",
		repo:        project.FullName(),
		ignoreFile:  ignoreFile,
		urlPrefix:   project.SourceMapPrefix,
		environment: "production",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PrepareRelease creates the release and uploads its source maps
func (t *Tracker) PrepareRelease(ctx context.Context, release *model.ReleaseInfo) error {
	steps := [][]string{
		{"releases", "new", release.Version, "--url", release.RunURL},
		{"releases", "files", release.Version, "upload-sourcemaps",
			"--ignore", t.ignoreFile,
			"--url-prefix", t.urlPrefix,
			release.SourceMapDir,
		},
	}
	return t.runAll(ctx, release, steps)
}

// FinalizeRelease associates the deployed commit, finalizes the release and
// records the deploy
func (t *Tracker) FinalizeRelease(ctx context.Context, release *model.ReleaseInfo) error {
	steps := [][]string{
		{"releases", "set-commits", release.Version, "--commit", t.repo + "@" + release.CommitSHA},
		{"releases", "finalize", release.Version},
		{"releases", "deploys", release.Version, "new",
			"--name", release.DeployName,
			"--env", t.environment,
			"--url", release.RunURL,
		},
	}
	return t.runAll(ctx, release, steps)
}

func (t *Tracker) runAll(ctx context.Context, release *model.ReleaseInfo, steps [][]string) error {
	logger := ctxlog.From(ctx)

	for _, args := range steps {
		cmd := &command.Cmd{Name: t.path, Args: args}

		if release.DryRun {
			logger.Info("run [dry-run]", "cmd", cmd.String())
			continue
		}

		if _, err := t.runner.Run(ctx, cmd); err != nil {
			return goerr.Wrap(err, "sentry-cli failed",
				goerr.T(types.ErrTagExternal),
				goerr.V("version", release.Version),
			)
		}
	}
	return nil
}
