package models

import "time"

// TagRecord is one tag creation event. Records are never mutated: a forced
// overwrite produces a new record.
type TagRecord struct {
	Repo       string    `json:"repo" yaml:"repo"`
	Tag        string    `json:"tag" yaml:"tag"`
	Commit     string    `json:"commit" yaml:"commit"`
	Pushed     bool      `json:"pushed" yaml:"pushed"`
	Forced     bool      `json:"forced,omitempty" yaml:"forced,omitempty"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// ShortCommit returns the first 8 characters of the commit
func (r TagRecord) ShortCommit() string {
	return ShortSHA(r.Commit)
}

// ShortSHA truncates a commit hash for display
func ShortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
