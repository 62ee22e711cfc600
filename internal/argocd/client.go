// Package argocd reads application health and sync status from Argo CD,
// either through the argocd CLI or directly from the Application resources
// in the cluster.
package argocd

import (
	"context"
	"errors"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"
)

// ErrAppNotFound means the controller has no application with that name
var ErrAppNotFound = errors.New("application not found")

// StatusClient fetches one fresh observation of an application. There is no
// internal retry; callers own the retry policy.
type StatusClient interface {
	GetStatus(ctx context.Context, app string) (models.DeploymentStatus, error)
}

// Waiter blocks inside the controller until the application is healthy and
// synced, degraded, or timeout elapses, then returns the final observation.
// Reaching the timeout is not an error; the caller classifies the status.
type Waiter interface {
	WaitForStatus(ctx context.Context, app string, timeout time.Duration) (models.DeploymentStatus, error)
}

// NamespaceFinder names the application deploying into a namespace. An
// empty name with a nil error means none was found.
type NamespaceFinder interface {
	AppForNamespace(ctx context.Context, namespace string) (string, error)
}

// Backend bundles the capabilities of one controller connection
type Backend interface {
	StatusClient
	Waiter
	NamespaceFinder
}
