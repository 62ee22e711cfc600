package models

// RepoRole tells whether a repository receives preview tags or hosts the
// infra branch and PR
type RepoRole string

const (
	RoleApp   RepoRole = "app"
	RoleInfra RepoRole = "infra"
)

// RepoTarget is one configured repository of the workspace
type RepoTarget struct {
	// Name is the GitHub repository name (e.g. "dem2-webui")
	Name string `toml:"name" json:"name" yaml:"name"`
	// Path to the local checkout
	Path string `toml:"path" json:"path" yaml:"path"`
	// DefaultBranch ("main" or "master")
	DefaultBranch string `toml:"default_branch" json:"default_branch" yaml:"default_branch"`
	// Role is "app" or "infra"
	Role RepoRole `toml:"role" json:"role" yaml:"role"`
}

// IsInfra reports whether the repo carries the preview/{id} branch
func (r RepoTarget) IsInfra() bool {
	return r.Role == RoleInfra
}
