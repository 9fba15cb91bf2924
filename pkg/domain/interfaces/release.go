package interfaces

import (
	"context"

	"github.com/m-mizutani/herder/pkg/domain/model"
)

// ReleaseTracker defines the release bookkeeping around a deploy
type ReleaseTracker interface {
	// PrepareRelease creates the release and uploads its artifacts
	PrepareRelease(ctx context.Context, release *model.ReleaseInfo) error

	// FinalizeRelease associates commits, finalizes the release and records the deploy
	FinalizeRelease(ctx context.Context, release *model.ReleaseInfo) error
}

// Notifier announces the outcome of a run
type Notifier interface {
	NotifyOutcome(ctx context.Context, params *model.DeployParams, result *model.DeployResult) error
}

// Reporter records step outputs and CI annotations
type Reporter interface {
	Output(name, value string) error
	Notice(msg ...any)
	Warning(msg ...any)
	Error(msg ...any)
	Summary(title string, content ...any)
	Group(title string) func()
}
