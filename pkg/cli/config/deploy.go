package config

import (
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Deploy holds the parameters of a deploy-commit run
type Deploy struct {
	RepoDir            string
	Remote             string
	HeadRef            string
	BaseRef            string
	EffectiveEvent     string
	PRNumber           string
	RunURL             string
	DeployDir          string
	DeployRevisionInfo string
	OutputsFile        string
	DryRun             bool
}

// Flags returns CLI flags for deploy-commit
func (c *Deploy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repo-dir",
			Usage:       "Local clone to operate on",
			Value:       ".",
			Destination: &c.RepoDir,
			Sources:     cli.EnvVars("HERDER_REPO_DIR"),
		},
		&cli.StringFlag{
			Name:        "remote",
			Usage:       "Git remote to fetch from and push to",
			Value:       "origin",
			Destination: &c.Remote,
		},
		&cli.StringFlag{
			Name:        "base-ref",
			Usage:       "Branch the change targets",
			Required:    true,
			Destination: &c.BaseRef,
		},
		&cli.StringFlag{
			Name:        "head-ref",
			Usage:       "Branch carrying the change",
			Required:    true,
			Destination: &c.HeadRef,
		},
		&cli.StringFlag{
			Name:        "effective-event",
			Usage:       "Event being handled (pull_request, push)",
			Required:    true,
			Destination: &c.EffectiveEvent,
		},
		&cli.StringFlag{
			Name:        "pr-number",
			Usage:       "Pull request number, required for pull_request",
			Destination: &c.PRNumber,
		},
		&cli.StringFlag{
			Name:        "run-url",
			Usage:       "URL of the CI run",
			Required:    true,
			Destination: &c.RunURL,
		},
		&cli.StringFlag{
			Name:        "deploy-dir",
			Usage:       "Built site directory to publish",
			Destination: &c.DeployDir,
		},
		&cli.StringFlag{
			Name:        "deploy-revision-info",
			Usage:       "Revision info file recorded by the site build",
			Destination: &c.DeployRevisionInfo,
		},
		&cli.StringFlag{
			Name:        "outputs-file",
			Usage:       "File where step outputs are written",
			Destination: &c.OutputsFile,
			Sources:     cli.EnvVars("GITHUB_OUTPUT"),
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Print mutations instead of performing them",
			Destination: &c.DryRun,
			Sources:     cli.EnvVars("HERDER_DRY_RUN"),
		},
	}
}

// Params converts the flags to deploy parameters
func (c *Deploy) Params() (*model.DeployParams, error) {
	event := model.EventKind(c.EffectiveEvent)
	if !event.IsValid() {
		return nil, goerr.New("unexpected effective event", goerr.T(types.ErrTagConfig), goerr.V("event", c.EffectiveEvent))
	}

	params := &model.DeployParams{
		Remote:             c.Remote,
		HeadRef:            c.HeadRef,
		BaseRef:            c.BaseRef,
		Event:              event,
		RunURL:             c.RunURL,
		DeployDir:          c.DeployDir,
		DeployRevisionInfo: c.DeployRevisionInfo,
		OutputsFile:        c.OutputsFile,
		DryRun:             c.DryRun,
	}

	if c.PRNumber != "" {
		n, err := strconv.Atoi(c.PRNumber)
		if err != nil || n <= 0 {
			return nil, goerr.New("invalid pull request number", goerr.T(types.ErrTagConfig), goerr.V("pr_number", c.PRNumber))
		}
		params.PRNumber = &n
	}

	return params, nil
}
