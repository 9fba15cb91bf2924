package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/herder/pkg/cli/config"
	controller "github.com/m-mizutani/herder/pkg/controller/github"
	"github.com/m-mizutani/herder/pkg/domain/model"
	githubinfra "github.com/m-mizutani/herder/pkg/infra/github"
	"github.com/m-mizutani/herder/pkg/utils/actions"
)

func cmdResolveParams() *cli.Command {
	var (
		triggerCfg config.Trigger
		githubCfg  config.GitHub
		actionsCfg config.Actions
	)

	return &cli.Command{
		Name:  "resolve-params",
		Usage: "Derive deploy-commit parameters from the triggering event",
		Flags: slices.Concat(triggerCfg.Flags(), githubCfg.Flags(), actionsCfg.Flags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			event, err := triggerCfg.Event()
			if err != nil {
				return err
			}

			reporter := actionsCfg.Reporter(triggerCfg.OutputsFile)
			reporter.Info("trigger", event.Type, "on", event.Owner+"/"+event.Repo)

			api, err := githubCfg.NewAPI(ctx)
			if err != nil {
				return err
			}
			runs := githubinfra.NewClient(api, event.Owner, event.Repo, nil)

			params, err := controller.NewEventResolver(runs, triggerCfg.WorkflowFile).Resolve(ctx, event)
			if err != nil {
				return err
			}

			raw, err := json.MarshalIndent(params, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode parameters")
			}
			fmt.Fprintln(os.Stdout, string(raw))

			return writeResolvedOutputs(reporter, params)
		},
	}
}

// writeResolvedOutputs writes every parameter as a step output. Absent
// values are written empty.
func writeResolvedOutputs(reporter *actions.Reporter, params *model.ResolvedParams) error {
	var workflowRun, conclusion, prNumber string
	if params.WorkflowRun != nil {
		workflowRun = strconv.FormatInt(*params.WorkflowRun, 10)
	}
	if params.Conclusion != nil {
		conclusion = *params.Conclusion
	}
	if params.PRNumber != nil {
		prNumber = strconv.Itoa(*params.PRNumber)
	}

	outputs := [][2]string{
		{"workflow_run", workflowRun},
		{"conclusion", conclusion},
		{"effective_event", string(params.EffectiveEvent)},
		{"pr_number", prNumber},
		{"head_ref", params.HeadRef},
		{"head_sha", params.HeadSHA},
		{"base_ref", params.BaseRef},
		{"base_sha", params.BaseSHA},
	}
	for _, kv := range outputs {
		if err := reporter.Output(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}
