package config

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Trigger describes the GitHub event that started the workflow
type Trigger struct {
	EventName    string
	EventPath    string
	Ref          string
	SHA          string
	Repository   string
	WorkflowFile string
	OutputsFile  string
}

// Flags returns CLI flags read from the runner environment
func (c *Trigger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "event-name",
			Usage:       "Name of the triggering event",
			Required:    true,
			Destination: &c.EventName,
			Sources:     cli.EnvVars("GITHUB_EVENT_NAME"),
		},
		&cli.StringFlag{
			Name:        "event-path",
			Usage:       "File holding the event payload",
			Required:    true,
			Destination: &c.EventPath,
			Sources:     cli.EnvVars("GITHUB_EVENT_PATH"),
		},
		&cli.StringFlag{
			Name:        "ref",
			Usage:       "Ref of the triggering event",
			Destination: &c.Ref,
			Sources:     cli.EnvVars("GITHUB_REF"),
		},
		&cli.StringFlag{
			Name:        "sha",
			Usage:       "Commit of the triggering event",
			Destination: &c.SHA,
			Sources:     cli.EnvVars("GITHUB_SHA"),
		},
		&cli.StringFlag{
			Name:        "repository",
			Usage:       "Repository as owner/name",
			Required:    true,
			Destination: &c.Repository,
			Sources:     cli.EnvVars("GITHUB_REPOSITORY"),
		},
		&cli.StringFlag{
			Name:        "workflow",
			Usage:       "Workflow file whose runs validate pull requests",
			Value:       "validate.yml",
			Destination: &c.WorkflowFile,
			Sources:     cli.EnvVars("HERDER_VALIDATION_WORKFLOW"),
		},
		&cli.StringFlag{
			Name:        "outputs-file",
			Usage:       "File where step outputs are written",
			Destination: &c.OutputsFile,
			Sources:     cli.EnvVars("GITHUB_OUTPUT"),
		},
	}
}

// Event reads the payload and builds the trigger event
func (c *Trigger) Event() (*model.TriggerEvent, error) {
	owner, repo, ok := strings.Cut(c.Repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, goerr.New("repository must be owner/name", goerr.T(types.ErrTagConfig), goerr.V("repository", c.Repository))
	}

	payload, err := os.ReadFile(c.EventPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read event payload", goerr.T(types.ErrTagConfig), goerr.V("path", c.EventPath))
	}

	return &model.TriggerEvent{
		Type:       model.TriggerEventType(c.EventName),
		Ref:        c.Ref,
		SHA:        c.SHA,
		Owner:      owner,
		Repo:       repo,
		RawPayload: payload,
	}, nil
}
