package models

import "time"

// PRState is the GitHub pull request state as reported by gh
type PRState string

const (
	PROpen   PRState = "OPEN"
	PRMerged PRState = "MERGED"
	PRClosed PRState = "CLOSED"
)

// PullRequestRecord is a typed view of a PR returned by gh
type PullRequestRecord struct {
	Repo       string     `json:"repo" yaml:"repo"`
	Number     uint64     `json:"number" yaml:"number"`
	Title      string     `json:"title" yaml:"title"`
	State      PRState    `json:"state" yaml:"state"`
	HeadBranch string     `json:"head_branch" yaml:"head_branch"`
	BaseBranch string     `json:"base_branch" yaml:"base_branch"`
	Author     string     `json:"author" yaml:"author"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	MergedAt   *time.Time `json:"merged_at,omitempty" yaml:"merged_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`
	URL        string     `json:"url" yaml:"url"`
}

// IsFinished is true for merged or closed PRs
func (p PullRequestRecord) IsFinished() bool {
	return p.State == PRMerged || p.State == PRClosed
}

// GhPr mirrors the fields requested from `gh pr view/list --json`
type GhPr struct {
	Number      uint64     `json:"number"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	HeadRefName string     `json:"headRefName"`
	BaseRefName string     `json:"baseRefName"`
	URL         string     `json:"url"`
	Author      *GhAuthor  `json:"author"`
	CreatedAt   time.Time  `json:"createdAt"`
	MergedAt    *time.Time `json:"mergedAt"`
	ClosedAt    *time.Time `json:"closedAt"`
}

// GhAuthor is the nested author object from gh
type GhAuthor struct {
	Login string `json:"login"`
}

// GhPrFields is the --json field list matching GhPr
const GhPrFields = "number,title,state,headRefName,baseRefName,url,author,createdAt,mergedAt,closedAt"

// Record converts the gh payload into a PullRequestRecord for repo
func (g GhPr) Record(repo string) PullRequestRecord {
	rec := PullRequestRecord{
		Repo:       repo,
		Number:     g.Number,
		Title:      g.Title,
		State:      PRState(g.State),
		HeadBranch: g.HeadRefName,
		BaseBranch: g.BaseRefName,
		CreatedAt:  g.CreatedAt,
		URL:        g.URL,
	}
	if g.Author != nil {
		rec.Author = g.Author.Login
	}
	// gh reports zero timestamps as null or "0001-01-01T00:00:00Z" depending on version
	if g.MergedAt != nil && !g.MergedAt.IsZero() {
		t := *g.MergedAt
		rec.MergedAt = &t
	}
	if g.ClosedAt != nil && !g.ClosedAt.IsZero() {
		t := *g.ClosedAt
		rec.ClosedAt = &t
	}
	return rec
}
