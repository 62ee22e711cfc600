package argocd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/execrun"
	"github.com/numberone-ai/previewctl/internal/models"
)

// CLIClient talks to Argo CD through the argocd CLI and its logged-in session
type CLIClient struct {
	Server  string
	GRPCWeb bool

	runner execrun.Runner
	logger *slog.Logger
	now    func() time.Time
}

// NewCLIClient returns a client; server may be empty to use the CLI's current context
func NewCLIClient(server string, grpcWeb bool, runner execrun.Runner, logger *slog.Logger) *CLIClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLIClient{Server: server, GRPCWeb: grpcWeb, runner: runner, logger: logger, now: time.Now}
}

// appJSON is the subset of `argocd app get -o json` we read
type appJSON struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Status struct {
		Health struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"health"`
		Sync struct {
			Status   string `json:"status"`
			Revision string `json:"revision"`
		} `json:"sync"`
		OperationState *struct {
			Phase   string `json:"phase"`
			Message string `json:"message"`
		} `json:"operationState"`
	} `json:"status"`
}

// appListJSON is the subset of one `argocd app list -o json` entry we read
type appListJSON struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Spec struct {
		Destination struct {
			Namespace string `json:"namespace"`
		} `json:"destination"`
	} `json:"spec"`
}

func (c *CLIClient) globalArgs() []string {
	var args []string
	if c.Server != "" {
		args = append(args, "--server", c.Server)
	}
	if c.GRPCWeb {
		args = append(args, "--grpc-web")
	}
	return args
}

// GetStatus runs `argocd app get <app> -o json`
func (c *CLIClient) GetStatus(ctx context.Context, app string) (models.DeploymentStatus, error) {
	args := append([]string{"app", "get", app, "-o", "json"}, c.globalArgs()...)
	res, err := c.runner.Run(ctx, "", "argocd", args...)
	if err != nil {
		return models.DeploymentStatus{}, classify(app, err)
	}

	var doc appJSON
	if err := json.Unmarshal(res.Stdout, &doc); err != nil {
		return models.DeploymentStatus{}, fmt.Errorf("failed to parse argocd app get output: %w", err)
	}
	status := models.DeploymentStatus{
		App:        app,
		Health:     models.ParseHealth(doc.Status.Health.Status),
		Sync:       models.ParseSync(doc.Status.Sync.Status),
		ObservedAt: c.now(),
		Revision:   doc.Status.Sync.Revision,
		Message:    doc.Status.Health.Message,
	}
	if status.Message == "" && doc.Status.OperationState != nil {
		status.Message = doc.Status.OperationState.Message
	}
	c.logger.Debug("argocd status", "app", app, "health", status.Health, "sync", status.Sync)
	return status, nil
}

// AppForNamespace runs `argocd app list -o json` and picks the application
// whose destination is namespace
func (c *CLIClient) AppForNamespace(ctx context.Context, namespace string) (string, error) {
	args := append([]string{"app", "list", "-o", "json"}, c.globalArgs()...)
	res, err := c.runner.Run(ctx, "", "argocd", args...)
	if err != nil {
		return "", fmt.Errorf("list applications: %w", err)
	}
	var apps []appListJSON
	if err := json.Unmarshal(res.Stdout, &apps); err != nil {
		return "", fmt.Errorf("failed to parse argocd app list output: %w", err)
	}
	for _, app := range apps {
		if app.Spec.Destination.Namespace == namespace {
			return app.Metadata.Name, nil
		}
	}
	return "", nil
}

// WaitForStatus runs `argocd app wait --health --sync --degraded` and then
// reads the final status
func (c *CLIClient) WaitForStatus(ctx context.Context, app string, timeout time.Duration) (models.DeploymentStatus, error) {
	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	args := append([]string{"app", "wait", app,
		"--health", "--sync", "--degraded",
		"--timeout", strconv.Itoa(secs),
	}, c.globalArgs()...)

	_, waitErr := c.runner.Run(ctx, "", "argocd", args...)
	if waitErr != nil {
		if ctx.Err() != nil {
			return models.DeploymentStatus{}, ctx.Err()
		}
		if err := classify(app, waitErr); errors.Is(err, ErrAppNotFound) {
			return models.DeploymentStatus{}, err
		}
		var missing *execrun.NotInstalledError
		if errors.As(waitErr, &missing) {
			return models.DeploymentStatus{}, waitErr
		}
		// argocd exits non-zero on timeout and on degraded; the status says which
		c.logger.Debug("argocd app wait returned", "app", app, "err", waitErr)
	}

	status, err := c.GetStatus(ctx, app)
	if err != nil {
		return status, err
	}
	if waitErr != nil && !status.Ready() && !status.Failed() && !isWaitTimeout(waitErr) {
		return status, fmt.Errorf("argocd app wait: %w", waitErr)
	}
	return status, nil
}

// classify maps argocd CLI failures. Since Argo CD 2.6 a missing application
// answers PermissionDenied instead of NotFound.
func classify(app string, err error) error {
	var exitErr *execrun.ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Stderr
		if strings.Contains(msg, "NotFound") || strings.Contains(msg, "PermissionDenied") {
			return fmt.Errorf("%s: %w", app, ErrAppNotFound)
		}
	}
	return err
}

func isWaitTimeout(err error) bool {
	var exitErr *execrun.ExitError
	return errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "timed out")
}
