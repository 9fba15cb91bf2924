package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Logger holds logger configuration
type Logger struct {
	Level string
	JSON  bool
}

// Flags returns CLI flags for logger configuration
func (c *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &c.Level,
			Sources:     cli.EnvVars("HERDER_LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "Output logs in JSON format",
			Value:       false,
			Destination: &c.JSON,
			Sources:     cli.EnvVars("HERDER_LOG_JSON"),
		},
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// redactor masks credentials in both text and JSON output
func redactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("Token"),
		masq.WithFieldName("BotToken"),
		masq.WithFieldName("PrivateKey"),
		masq.WithFieldName("WebhookURL"),
		masq.WithFieldName("DSN"),
		masq.WithTag("secret"),
	)
}

// Configure configures and returns a logger writing to stderr, keeping
// stdout free for command output
func (c *Logger) Configure() (*slog.Logger, error) {
	level, ok := logLevels[strings.ToLower(c.Level)]
	if !ok {
		return nil, goerr.New("invalid log level", goerr.T(types.ErrTagConfig), goerr.V("level", c.Level))
	}

	if c.JSON {
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: redactor(),
		})
		return slog.New(handler), nil
	}

	handler := clog.New(
		clog.WithWriter(os.Stderr),
		clog.WithLevel(level),
		clog.WithColor(true),
		clog.WithReplaceAttr(redactor()),
	)
	return slog.New(handler), nil
}
