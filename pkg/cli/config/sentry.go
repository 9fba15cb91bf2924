package config

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	"github.com/m-mizutani/herder/pkg/infra/sentrycli"
)

// Sentry holds error reporting and release tracking configuration
type Sentry struct {
	DSN         string `masq:"secret"`
	Environment string
	CLIPath     string
	SkipRelease bool
}

// Flags returns CLI flags for error reporting of the tool itself
func (c *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for reporting fatal errors of this tool",
			Destination: &c.DSN,
			Sources:     cli.EnvVars("HERDER_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Environment that releases are deployed to",
			Value:       "production",
			Destination: &c.Environment,
			Sources:     cli.EnvVars("HERDER_SENTRY_ENV"),
		},
	}
}

// ReleaseFlags returns CLI flags for release tracking with sentry-cli
func (c *Sentry) ReleaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-cli",
			Usage:       "Path of the sentry-cli executable",
			Value:       "sentry-cli",
			Destination: &c.CLIPath,
			Sources:     cli.EnvVars("HERDER_SENTRY_CLI"),
		},
		&cli.BoolFlag{
			Name:        "skip-release-tracking",
			Usage:       "Do not create releases and deploys for published sites",
			Destination: &c.SkipRelease,
			Sources:     cli.EnvVars("HERDER_SKIP_RELEASE_TRACKING"),
		},
	}
}

// Init enables error reporting when a DSN is set. The returned function
// flushes pending events.
func (c *Sentry) Init() (func(), error) {
	if c.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         c.DSN,
		Release:     "herder@" + types.Version,
		Environment: c.Environment,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize sentry", goerr.T(types.ErrTagConfig))
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Enabled reports whether fatal errors are sent
func (c *Sentry) Enabled() bool {
	return c.DSN != ""
}

// Tracker returns the release tracker, or nil when tracking is skipped
func (c *Sentry) Tracker(project model.Project) *sentrycli.Tracker {
	if c.SkipRelease {
		return nil
	}
	return sentrycli.New(project,
		sentrycli.WithPath(c.CLIPath),
		sentrycli.WithEnvironment(c.Environment),
	)
}
