package slack

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Notifier posts deploy outcomes to an incoming webhook
type Notifier struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

var _ interfaces.Notifier = (*Notifier)(nil)

// New creates a notifier posting to webhookURL
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		post:       slack.PostWebhookContext,
	}
}

var outcomeColors = map[model.Outcome]string{
	model.OutcomeSuccess:         "good",
	model.OutcomeStale:           "warning",
	model.OutcomeNotEligible:     "warning",
	model.OutcomeAlreadyDeployed: "#439FE0",
	model.OutcomeNoop:            "#AAAAAA",
}

// NotifyOutcome posts one message per run. Runs that did nothing are not posted.
func (n *Notifier) NotifyOutcome(ctx context.Context, params *model.DeployParams, result *model.DeployResult) error {
	if result.Outcome == model.OutcomeNoop {
		return nil
	}

	if err := n.post(ctx, n.webhookURL, BuildMessage(params, result)); err != nil {
		return goerr.Wrap(err, "failed to post slack message",
			goerr.T(types.ErrTagExternal),
			goerr.V("outcome", result.Outcome),
		)
	}
	return nil
}

// BuildMessage renders the message for a run
func BuildMessage(params *model.DeployParams, result *model.DeployResult) *slack.WebhookMessage {
	subject := params.HeadRef
	if params.PRNumber != nil {
		subject = fmt.Sprintf("PR #%d (%s into %s)", *params.PRNumber, params.HeadRef, params.BaseRef)
	}

	fields := []slack.AttachmentField{
		{Title: "Outcome", Value: string(result.Outcome), Short: true},
		{Title: "Event", Value: string(params.Event), Short: true},
	}
	if result.PushSHA != "" {
		fields = append(fields, slack.AttachmentField{Title: "Commit", Value: result.PushSHA, Short: true})
	}
	if result.ReleaseVersion != "" {
		fields = append(fields, slack.AttachmentField{Title: "Release", Value: result.ReleaseVersion, Short: true})
	}
	if result.DeployTag != nil {
		fields = append(fields, slack.AttachmentField{Title: "Deploy", Value: result.DeployTag.Name()})
	}
	if result.PriorDeploy != nil {
		fields = append(fields, slack.AttachmentField{Title: "Deployed by", Value: result.PriorDeploy.TagName()})
	}
	for _, m := range result.Mismatches {
		var values string
		for _, v := range m.Values {
			values += fmt.Sprintf("%s: `%s`\n", v.Source, v.Value)
		}
		fields = append(fields, slack.AttachmentField{Title: "Mismatch " + m.Field, Value: values})
	}

	if params.DryRun {
		subject += " [dry-run]"
	}

	return &slack.WebhookMessage{
		Text: fmt.Sprintf("deploy-commit %s: %s", result.Outcome, subject),
		Attachments: []slack.Attachment{
			{
				Color:      outcomeColors[result.Outcome],
				Fields:     fields,
				Footer:     params.RunURL,
				MarkdownIn: []string{"fields"},
			},
		},
	}
}
