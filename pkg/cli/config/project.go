package config

import (
	"bytes"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Project holds the location of the project settings file
type Project struct {
	Path string
}

// Flags returns CLI flags for project configuration
func (c *Project) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project-config",
			Usage:       "TOML file overriding repository settings",
			Destination: &c.Path,
			Sources:     cli.EnvVars("HERDER_PROJECT_CONFIG"),
		},
	}
}

// Load returns the default settings overlaid with the settings file, if any.
// Keys missing from the file keep their defaults.
func (c *Project) Load() (model.Project, error) {
	project := model.DefaultProject()
	if c.Path == "" {
		return project, nil
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return project, goerr.Wrap(err, "failed to read project config", goerr.T(types.ErrTagConfig), goerr.V("path", c.Path))
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&project); err != nil {
		return project, goerr.Wrap(err, "failed to parse project config", goerr.T(types.ErrTagConfig), goerr.V("path", c.Path))
	}

	return project, nil
}
