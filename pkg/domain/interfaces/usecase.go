package interfaces

import (
	"context"

	"github.com/m-mizutani/herder/pkg/domain/model"
)

// DeployUseCase decides whether and what to merge, push and publish
type DeployUseCase interface {
	// DeployCommit handles one pull request or push event end to end
	DeployCommit(ctx context.Context, params *model.DeployParams) (*model.DeployResult, error)
}
