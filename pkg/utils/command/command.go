package command

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Cmd is a single external command invocation
type Cmd struct {
	Name string
	Args []string
	Dir  string

	// Env is appended to the inherited environment
	Env []string

	// Unset removes variables from the inherited environment
	Unset []string
}

func (c *Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result holds the captured output. It is returned even when the command fails.
type Result struct {
	Stdout string
	Stderr string
}

// Runner runs external commands. Replaced in tests.
type Runner interface {
	Run(ctx context.Context, cmd *Cmd) (*Result, error)
}

// Exec runs commands as child processes
type Exec struct{}

var _ Runner = Exec{}

func (Exec) Run(ctx context.Context, cmd *Cmd) (*Result, error) {
	logger := ctxlog.From(ctx)
	logger.Debug("run", "cmd", cmd.String(), "dir", cmd.Dir)

	osCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	osCmd.Dir = cmd.Dir
	osCmd.Env = append(environ(cmd.Unset), cmd.Env...)

	var stdout, stderr bytes.Buffer
	osCmd.Stdout = &stdout
	osCmd.Stderr = &stderr

	err := osCmd.Run()
	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	for _, line := range strings.Split(strings.TrimRight(result.Stderr, "\n"), "\n") {
		if line != "" {
			logger.Debug("stderr", "line", line)
		}
	}

	if err != nil {
		return result, goerr.Wrap(err, "command failed",
			goerr.V("cmd", cmd.String()),
			goerr.V("dir", cmd.Dir),
			goerr.V("stderr", strings.TrimSpace(result.Stderr)),
		)
	}

	return result, nil
}

func environ(unset []string) []string {
	env := os.Environ()
	if len(unset) == 0 {
		return env
	}

	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		drop := false
		for _, u := range unset {
			if key == u {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}
