package config

import (
	"context"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/domain/types"
	githubinfra "github.com/m-mizutani/herder/pkg/infra/github"
)

// GitHub holds GitHub API credentials
type GitHub struct {
	Token          string `masq:"secret"`
	BotToken       string `masq:"secret"`
	AppID          int64
	InstallationID int64
	PrivateKey     string `masq:"secret"`
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub API token for reading pull requests and managing labels",
			Destination: &c.Token,
			Sources:     cli.EnvVars("HERDER_GITHUB_TOKEN", "GH_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "github-bot-token",
			Usage:       "GitHub token of the account submitting automatic approvals",
			Destination: &c.BotToken,
			Sources:     cli.EnvVars("HERDER_GITHUB_BOT_TOKEN", "GH_BOT_TOKEN"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID, used instead of --github-token",
			Destination: &c.AppID,
			Sources:     cli.EnvVars("HERDER_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-app-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("HERDER_GITHUB_APP_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-app-private-key",
			Usage:       "GitHub App private key (PEM)",
			Destination: &c.PrivateKey,
			Sources:     cli.EnvVars("HERDER_GITHUB_APP_PRIVATE_KEY"),
		},
	}
}

// NewAPI creates the API client. App credentials take precedence over a
// token; without either the client is unauthenticated.
func (c *GitHub) NewAPI(ctx context.Context) (*github.Client, error) {
	switch {
	case c.AppID != 0:
		if c.InstallationID == 0 || c.PrivateKey == "" {
			return nil, goerr.New("GitHub App requires installation ID and private key",
				goerr.T(types.ErrTagConfig),
				goerr.V("app_id", c.AppID),
			)
		}
		return githubinfra.NewAppAPI(c.AppID, c.InstallationID, []byte(c.PrivateKey))

	case c.Token != "":
		return githubinfra.NewTokenAPI(ctx, c.Token), nil

	default:
		ctxlog.From(ctx).Warn("no GitHub credentials configured, using unauthenticated API client")
		return github.NewClient(nil), nil
	}
}

// ReviewOptions returns client options derived from the credentials
func (c *GitHub) ReviewOptions(ctx context.Context) []githubinfra.Option {
	if c.BotToken == "" {
		return nil
	}
	return []githubinfra.Option{githubinfra.WithBotClient(githubinfra.NewTokenAPI(ctx, c.BotToken))}
}
