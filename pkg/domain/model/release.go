package model

// ReleaseInfo represents a release tracker release for one deploy
type ReleaseInfo struct {
	Version      string // Release version computed from the revision info
	RunURL       string // URL of the CI run performing the deploy
	SourceMapDir string // Directory holding source maps to upload
	CommitSHA    string // Source commit being deployed
	DeployName   string // Deploy number
	DryRun       bool   // Print tracker calls instead of running them
}

// Approval is an automatic review submitted on an eligible pull request
type Approval struct {
	CommitSHA string
	Body      string
}
