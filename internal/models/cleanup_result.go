package models

// CleanupStatus is the outcome of removing one preview artifact
type CleanupStatus string

const (
	CleanupRemoved CleanupStatus = "removed"
	CleanupSkipped CleanupStatus = "skipped"
	CleanupFailed  CleanupStatus = "failed"
)

// CleanupResult is the result for one artifact (a tag or the infra PR)
type CleanupResult struct {
	Target string        `json:"target" yaml:"target"`
	Status CleanupStatus `json:"status" yaml:"status"`
	Detail string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// CleanupReport is the ordered list of cleanup results
type CleanupReport struct {
	ID      PreviewID       `json:"preview_id" yaml:"preview_id"`
	DryRun  bool            `json:"dry_run" yaml:"dry_run"`
	Results []CleanupResult `json:"results" yaml:"results"`
}

// Failed returns the number of failed targets
func (r CleanupReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == CleanupFailed {
			n++
		}
	}
	return n
}
