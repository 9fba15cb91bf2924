package config

import (
	"github.com/urfave/cli/v3"

	slackinfra "github.com/m-mizutani/herder/pkg/infra/slack"
)

// Slack holds Slack notification configuration
type Slack struct {
	WebhookURL string `masq:"secret"`
}

// Flags returns CLI flags for Slack configuration
func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook notified of deploy outcomes",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("HERDER_SLACK_WEBHOOK_URL"),
		},
	}
}

// Notifier returns the notifier, or nil when no webhook is configured
func (c *Slack) Notifier() *slackinfra.Notifier {
	if c.WebhookURL == "" {
		return nil
	}
	return slackinfra.New(c.WebhookURL)
}
