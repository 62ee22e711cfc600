package models

import "fmt"

// TagStatus is the outcome of tagging a single repo
type TagStatus string

const (
	// TagCreated indicates the tag was created (and pushed unless dry run)
	TagCreated TagStatus = "created"
	// TagSkipped indicates the tag already existed and force was not set
	TagSkipped TagStatus = "skipped"
	// TagFailed indicates the repo could not be tagged
	TagFailed TagStatus = "failed"
)

// TagResult represents the result of processing a single repo in a tag batch
type TagResult struct {
	Repo   string    `json:"repo" yaml:"repo"`
	Status TagStatus `json:"status" yaml:"status"`
	// Reason for Skipped or Failed
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	// Hint is a remediation suggestion shown next to the reason
	Hint string `json:"hint,omitempty" yaml:"hint,omitempty"`
	// Record is set when a tag was created
	Record *TagRecord `json:"record,omitempty" yaml:"record,omitempty"`
	// Err keeps the typed error for Failed results
	Err error `json:"-" yaml:"-"`
}

// Created builds a successful result
func Created(repo string, record TagRecord) TagResult {
	return TagResult{Repo: repo, Status: TagCreated, Record: &record}
}

// Skipped builds a result for a repo that needed no work
func Skipped(repo, reason, hint string) TagResult {
	return TagResult{Repo: repo, Status: TagSkipped, Reason: reason, Hint: hint}
}

// Failed builds a result carrying the error that stopped this repo
func Failed(repo string, err error, hint string) TagResult {
	return TagResult{Repo: repo, Status: TagFailed, Reason: err.Error(), Hint: hint, Err: err}
}

// TagBatch is the ordered list of per-repo results
type TagBatch []TagResult

// Failed returns the number of failed repos
func (b TagBatch) Failed() int {
	return b.count(TagFailed)
}

// Succeeded returns the number of repos that were created or skipped
func (b TagBatch) Succeeded() int {
	return len(b) - b.Failed()
}

// Created returns the number of repos where a tag was created
func (b TagBatch) Created() int {
	return b.count(TagCreated)
}

// OK is true when no repo failed
func (b TagBatch) OK() bool {
	return b.Failed() == 0
}

// Summary renders "N of M repos succeeded"
func (b TagBatch) Summary() string {
	return fmt.Sprintf("%d of %d repos succeeded", b.Succeeded(), len(b))
}

func (b TagBatch) count(status TagStatus) int {
	n := 0
	for _, r := range b {
		if r.Status == status {
			n++
		}
	}
	return n
}
