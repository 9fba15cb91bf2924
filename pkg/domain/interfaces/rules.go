package interfaces

import "context"

// EligibilityEvaluator computes a verdict document from raw pull request
// and review documents
type EligibilityEvaluator interface {
	Evaluate(ctx context.Context, pullRequest, reviews any) ([]byte, error)
}

// ReleaseVersioner computes the expected release version from a revision info file
type ReleaseVersioner interface {
	ReleaseVersion(ctx context.Context, revisionInfoPath string) (string, error)
}
