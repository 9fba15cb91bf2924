package cli

import (
	"context"
	"log/slog"
	"slices"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/cli/config"
	"github.com/m-mizutani/herder/pkg/infra/git"
	githubinfra "github.com/m-mizutani/herder/pkg/infra/github"
	"github.com/m-mizutani/herder/pkg/infra/jq"
	"github.com/m-mizutani/herder/pkg/usecase"
)

func cmdDeployCommit(sentryCfg *config.Sentry) *cli.Command {
	var (
		deployCfg  config.Deploy
		projectCfg config.Project
		githubCfg  config.GitHub
		slackCfg   config.Slack
		actionsCfg config.Actions
	)

	flags := slices.Concat(
		deployCfg.Flags(),
		projectCfg.Flags(),
		githubCfg.Flags(),
		slackCfg.Flags(),
		actionsCfg.Flags(),
		sentryCfg.ReleaseFlags(),
	)

	return &cli.Command{
		Name:  "deploy-commit",
		Usage: "Merge, push and publish a validated build",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			project, err := projectCfg.Load()
			if err != nil {
				return err
			}
			params, err := deployCfg.Params()
			if err != nil {
				return err
			}
			logger.Debug("Starting deploy-commit",
				slog.Any("params", params),
				slog.Any("project", project),
			)

			reporter := actionsCfg.Reporter(params.OutputsFile)

			api, err := githubCfg.NewAPI(ctx)
			if err != nil {
				return err
			}
			review := githubinfra.NewClient(api, project.Owner, project.Repo,
				jq.NewEligibilityRules(jq.Deferred(project.PullRequestRules)),
				githubCfg.ReviewOptions(ctx)...,
			)

			opts := []usecase.DeployOption{usecase.WithReporter(reporter)}
			if tracker := sentryCfg.Tracker(project); tracker != nil {
				opts = append(opts, usecase.WithReleaseTracker(tracker))
			}

			uc := usecase.NewDeploy(project,
				git.New(deployCfg.RepoDir),
				review,
				jq.NewReleaseNamer(jq.Deferred(project.ReleaseNameRule)),
				opts...,
			)

			result, err := uc.DeployCommit(ctx, params)
			if err != nil {
				reporter.Error("fatal:", err)
				return goerr.Wrap(err, "deploy-commit failed")
			}

			if err := reporter.Output("outcome", string(result.Outcome)); err != nil {
				return err
			}
			logger.Info("deploy-commit finished",
				slog.String("outcome", string(result.Outcome)),
				slog.String("sha", result.PushSHA),
			)

			if notifier := slackCfg.Notifier(); notifier != nil {
				if err := notifier.NotifyOutcome(ctx, params, result); err != nil {
					logger.Warn("failed to notify Slack", slog.Any("error", err))
				}
			}

			return nil
		},
	}
}
