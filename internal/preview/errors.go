package preview

import (
	"errors"
	"fmt"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"
)

// Skip reason and hint for a tag that already exists without --force
const (
	TagConflict     = "tag already exists"
	TagConflictHint = "rerun with --force"
)

// ErrAborted wraps the context error when a watch is cancelled by the user
var ErrAborted = errors.New("aborted")

// AppCreationTimeoutError means the application never appeared in the controller
type AppCreationTimeoutError struct {
	App     string
	Timeout time.Duration
	// LastErr is the last non-NotFound fetch error, if any
	LastErr error
}

func (e *AppCreationTimeoutError) Error() string {
	msg := fmt.Sprintf("application %s was not created within %s", e.App, e.Timeout)
	if e.LastErr != nil {
		msg += " (last error: " + e.LastErr.Error() + ")"
	}
	return msg
}

func (e *AppCreationTimeoutError) Unwrap() error {
	return e.LastErr
}

// DeploymentDegradedError is a terminal Degraded or Missing observation
type DeploymentDegradedError struct {
	App    string
	Status models.DeploymentStatus
}

func (e *DeploymentDegradedError) Error() string {
	msg := fmt.Sprintf("application %s is %s", e.App, e.Status.Health)
	if e.Status.Message != "" {
		msg += ": " + e.Status.Message
	}
	return msg
}

// DeploymentTimeoutError means the poll budget ran out before a terminal state
type DeploymentTimeoutError struct {
	App     string
	Timeout time.Duration
	Last    models.DeploymentStatus
}

func (e *DeploymentTimeoutError) Error() string {
	return fmt.Sprintf("application %s not healthy and synced after %s (last: %s/%s)",
		e.App, e.Timeout, e.Last.Health, e.Last.Sync)
}
