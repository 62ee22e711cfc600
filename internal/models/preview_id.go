package models

import (
	"fmt"
	"regexp"
	"strconv"
)

var previewIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// PreviewID identifies one preview environment (e.g. "docproc-extraction-pipeline").
// Every tag, branch and application name is derived from it.
type PreviewID string

// ParsePreviewID validates s and returns it as a PreviewID
func ParsePreviewID(s string) (PreviewID, error) {
	if !previewIDPattern.MatchString(s) {
		return "", &ValidationError{
			Field:  "preview id",
			Value:  s,
			Reason: "must match [a-z0-9-]+",
		}
	}
	return PreviewID(s), nil
}

func (id PreviewID) String() string {
	return string(id)
}

// TagName returns the git tag pushed to application repos
func (id PreviewID) TagName() string {
	return "preview-" + string(id)
}

// BranchName returns the infra branch the preview pipeline creates
func (id PreviewID) BranchName() string {
	return "preview/" + string(id)
}

// AppName returns the fallback Argo CD application name (no infra PR known)
func (id PreviewID) AppName() string {
	return "preview-" + string(id)
}

// PRAppName returns the application name the controller derives from an infra PR
func PRAppName(number uint64) string {
	return "preview-pr-" + strconv.FormatUint(number, 10)
}

// ValidationError is a malformed user input. It is always raised before any
// side effect happens.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
