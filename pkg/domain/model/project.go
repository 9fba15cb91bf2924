package model

// Project holds the repository-specific settings of a deployment
type Project struct {
	Owner string `toml:"owner"`
	Repo  string `toml:"repo"`

	// SourceBranch is the only base branch whose builds may be published
	SourceBranch string `toml:"source_branch"`

	// PublishBranch is the hosting branch receiving deploy commits
	PublishBranch string `toml:"publish_branch"`

	PendingLabel string `toml:"pending_label"`

	PullRequestRules string `toml:"pull_request_rules"`
	ReleaseNameRule  string `toml:"release_name_rule"`
	DeployIgnoreFile string `toml:"deploy_ignore_file"`

	// SourceMapSubdir is the directory of the built site holding source maps
	SourceMapSubdir string `toml:"source_map_subdir"`
	SourceMapPrefix string `toml:"source_map_prefix"`

	TestMetadataFile string `toml:"test_metadata_file"`
}

// DefaultProject returns the settings used when no project file overrides them
func DefaultProject() Project {
	return Project{
		Owner:            "wabain",
		Repo:             "wabain.github.io",
		SourceBranch:     "develop",
		PublishBranch:    "master",
		PendingLabel:     "merge-pending",
		PullRequestRules: "ci/pull-request/pull-request.jq",
		ReleaseNameRule:  "ci/release-name.jq",
		DeployIgnoreFile: ".deploy-gitignore",
		SourceMapSubdir:  "home-assets",
		SourceMapPrefix:  "/home-assets",
		TestMetadataFile: ".test-meta.json",
	}
}

// FullName returns owner/repo
func (p *Project) FullName() string {
	return p.Owner + "/" + p.Repo
}
