package models

import "time"

// BranchLocation is where a branch was found
type BranchLocation string

const (
	BranchLocal  BranchLocation = "LOCAL"
	BranchRemote BranchLocation = "REMOTE"
	BranchAbsent BranchLocation = "NOT_FOUND"
)

// TagState is the tag sub-query of a repo report
type TagState struct {
	Name        string     `json:"name" yaml:"name"`
	Exists      bool       `json:"exists" yaml:"exists"`
	Commit      string     `json:"commit,omitempty" yaml:"commit,omitempty"`
	Date        *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	Unavailable string     `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// BranchState is the branch sub-query of a repo report
type BranchState struct {
	Name        string         `json:"name" yaml:"name"`
	Location    BranchLocation `json:"location" yaml:"location"`
	Unavailable string         `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// Exists is true for local or remote branches
func (b BranchState) Exists() bool {
	return b.Location == BranchLocal || b.Location == BranchRemote
}

// PRLookup is the PR sub-query of a repo report. PR is nil when no PR exists.
type PRLookup struct {
	PR          *PullRequestRecord `json:"pr,omitempty" yaml:"pr,omitempty"`
	Unavailable string             `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// RepoReport holds the independent sub-queries for one repo
type RepoReport struct {
	Repo   RepoTarget  `json:"repo" yaml:"repo"`
	Tag    TagState    `json:"tag" yaml:"tag"`
	Branch BranchState `json:"branch" yaml:"branch"`
	PR     PRLookup    `json:"pr" yaml:"pr"`
}

// DeploymentState is the controller sub-query of a report
type DeploymentState struct {
	App string `json:"app" yaml:"app"`
	// InfraPR is the infra PR number the app name was derived from (0 = fallback name)
	InfraPR     uint64            `json:"infra_pr,omitempty" yaml:"infra_pr,omitempty"`
	URL         string            `json:"url,omitempty" yaml:"url,omitempty"`
	Exists      bool              `json:"exists" yaml:"exists"`
	Status      *DeploymentStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Unavailable string            `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// Verdict summarises whether cleanup is needed
type Verdict string

const (
	VerdictClean        Verdict = "clean"
	VerdictNeedsCleanup Verdict = "needs-cleanup"
	VerdictIncomplete   Verdict = "incomplete"
)

// Recommendation is the synthesized cleanup advice of a report
type Recommendation struct {
	Verdict   Verdict  `json:"verdict" yaml:"verdict"`
	Artifacts []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Action    string   `json:"action" yaml:"action"`
}

// PreviewReport aggregates everything known about one preview environment
type PreviewReport struct {
	ID             PreviewID       `json:"preview_id" yaml:"preview_id"`
	GeneratedAt    time.Time       `json:"generated_at" yaml:"generated_at"`
	Repos          []RepoReport    `json:"repositories" yaml:"repositories"`
	Deployment     DeploymentState `json:"deployment" yaml:"deployment"`
	Recommendation Recommendation  `json:"recommendation" yaml:"recommendation"`
}

// Unavailable lists every sub-query that could not be answered
func (r PreviewReport) Unavailable() []string {
	var out []string
	for _, repo := range r.Repos {
		if repo.Tag.Unavailable != "" {
			out = append(out, repo.Repo.Name+" tag: "+repo.Tag.Unavailable)
		}
		if repo.Branch.Unavailable != "" {
			out = append(out, repo.Repo.Name+" branch: "+repo.Branch.Unavailable)
		}
		if repo.PR.Unavailable != "" {
			out = append(out, repo.Repo.Name+" pr: "+repo.PR.Unavailable)
		}
	}
	if r.Deployment.Unavailable != "" {
		out = append(out, "deployment: "+r.Deployment.Unavailable)
	}
	return out
}
