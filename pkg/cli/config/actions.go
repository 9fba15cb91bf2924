package config

import (
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/utils/actions"
)

// Actions holds the GitHub Actions runner environment
type Actions struct {
	Enabled     bool
	SummaryFile string
}

// Flags returns CLI flags read from the runner environment
func (c *Actions) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "github-actions",
			Usage:       "Emit GitHub Actions workflow commands",
			Destination: &c.Enabled,
			Sources:     cli.EnvVars("GITHUB_ACTIONS"),
		},
		&cli.StringFlag{
			Name:        "step-summary",
			Usage:       "Step summary file",
			Destination: &c.SummaryFile,
			Sources:     cli.EnvVars("GITHUB_STEP_SUMMARY"),
		},
	}
}

// Reporter creates a reporter appending step outputs to outputsFile
func (c *Actions) Reporter(outputsFile string) *actions.Reporter {
	return actions.New(
		actions.WithinActions(c.Enabled),
		actions.WithSummaryFile(c.SummaryFile),
		actions.WithOutputsFile(outputsFile),
	)
}
