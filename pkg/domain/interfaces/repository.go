package interfaces

import (
	"context"

	"github.com/m-mizutani/herder/pkg/domain/model"
)

// Repository defines the version control operations a deploy needs
type Repository interface {
	// ValidateBranchName fails if name is not a valid branch name
	ValidateBranchName(ctx context.Context, name string) error

	// ResolveCommit returns the commit sha a revision expression points at
	ResolveCommit(ctx context.Context, rev string) (string, error)

	// Fetch fetches refspec from remote without tags
	Fetch(ctx context.Context, remote, refspec string, opts ...string) error

	// CountCommits returns the number of commits reachable from rev
	CountCommits(ctx context.Context, rev string) (int, error)

	// ListRemoteTags lists tags on remote matching pattern
	ListRemoteTags(ctx context.Context, remote, pattern string) ([]model.RemoteRef, error)

	// PrepareMergeCommit materializes a pull request merge on a new local
	// branch and returns the rewritten commit sha
	PrepareMergeCommit(ctx context.Context, req *model.MergeCommitRequest) (string, error)

	// PrepareDeployCommit commits built content onto the local publish
	// branch and creates the annotated deploy tag
	PrepareDeployCommit(ctx context.Context, req *model.DeployCommitRequest) error

	// Push performs an atomic push
	Push(ctx context.Context, req *model.PushRequest) error
}
