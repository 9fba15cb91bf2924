package cli

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/cli/config"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		loggerCfg config.Logger
		sentryCfg config.Sentry
		logger    *slog.Logger
		flush     = func() {}
	)

	app := &cli.Command{
		Name:    "herder",
		Usage:   "Keep CI revisions consistent and publish deployable builds",
		Version: types.Version,
		Flags:   append(loggerCfg.Flags(), sentryCfg.Flags()...),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}
			logger = logger.With("run_id", uuid.NewString())

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)

			if flush, err = sentryCfg.Init(); err != nil {
				return nil, err
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdDeployCommit(&sentryCfg),
			cmdResolveParams(),
		},
	}

	err := app.Run(ctx, args)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		if sentryCfg.Enabled() {
			sentry.CaptureException(err)
		}
	}

	if flush != nil {
		flush()
	}
	return err
}
