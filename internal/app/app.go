// Package app wires configuration, clients and the preview components into
// the previewctl command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/numberone-ai/previewctl/internal/argocd"
	"github.com/numberone-ai/previewctl/internal/config"
	"github.com/numberone-ai/previewctl/internal/execrun"
	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/history"
	"github.com/numberone-ai/previewctl/internal/models"
	"github.com/numberone-ai/previewctl/internal/preview"
	"github.com/numberone-ai/previewctl/internal/ui"
)

// VCS is every version control operation the commands use
type VCS interface {
	preview.TagVCS
	preview.RefReader
	preview.CleanupVCS
	preview.AncestryReader
}

// GitHub is every pull request operation the commands use
type GitHub interface {
	preview.PRService
	preview.PRCloser
}

// Options are the global flags
type Options struct {
	ConfigPath string
	Verbose    bool
	LogFormat  string
	NoColor    bool
}

// App holds the wired dependencies of one invocation
type App struct {
	Config *config.Config
	Logger *slog.Logger
	VCS    VCS
	GitHub GitHub
	// History may be nil when disabled
	History preview.TagRecorder
	Clock   preview.Clock
	// Interactive enables the live watch view
	Interactive bool

	argo    argocd.Backend
	argoErr error
}

// Builder creates the App for a set of global options
type Builder func(opts Options, stdout, stderr io.Writer) (*App, error)

// NewLogger returns the stderr logger for --verbose and --log-format
func NewLogger(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, &models.ValidationError{Field: "log format", Value: format, Reason: "must be text or json"}
	}
}

// Build loads the config and connects the real clients
func Build(opts Options, stdout, stderr io.Writer) (*App, error) {
	logger, err := NewLogger(stderr, opts.Verbose, opts.LogFormat)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFile(opts.ConfigPath, false)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("config loaded", "path", cfg.File(), "repos", len(cfg.Repos), "argocd_backend", cfg.ArgoCD.Backend)

	runner := execrun.NewExec(logger)
	a := &App{
		Config: cfg,
		Logger: logger,
		VCS:    git.NewLocal(),
		GitHub: github.NewClient(cfg.GitHub.Org, runner, logger),
		Clock:  preview.RealClock,
	}

	switch cfg.ArgoCD.Backend {
	case config.BackendKubernetes:
		kube, err := argocd.NewKubeClientFromConfig(cfg.ArgoCD.Kubeconfig, cfg.ArgoCD.Context, cfg.ArgoCD.Namespace, logger)
		if err != nil {
			// Only the deployment commands need the cluster
			a.argoErr = fmt.Errorf("connect to cluster: %w", err)
		} else {
			a.argo = kube
		}
	default:
		a.argo = argocd.NewCLIClient(cfg.ArgoCD.Server, cfg.ArgoCD.GRPCWeb, runner, logger)
	}

	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err != nil {
			logger.Warn("tag history disabled", "error", err)
		} else {
			a.History = history.Open(path, cfg.History.MaxAge.Std())
		}
	}

	if f, ok := stdout.(*os.File); ok {
		ui.ConfigureColor(f, opts.NoColor)
		a.Interactive = ui.IsTerminal(f) && !opts.NoColor
	} else {
		ui.ConfigureColor(nil, true)
	}
	return a, nil
}

// SetArgoCD replaces the controller backend
func (a *App) SetArgoCD(b argocd.Backend) {
	a.argo = b
	a.argoErr = nil
}

// ArgoCD returns the controller backend, or the error from connecting to it
func (a *App) ArgoCD() (argocd.Backend, error) {
	if a.argoErr != nil {
		return nil, a.argoErr
	}
	if a.argo == nil {
		return nil, errors.New("no argocd backend configured")
	}
	return a.argo, nil
}

func (a *App) Correlator() *preview.Correlator {
	return preview.NewCorrelator(a.GitHub, a.Logger)
}

func (a *App) Coordinator() *preview.Coordinator {
	return preview.NewCoordinator(a.VCS, a.History, a.Logger)
}

// Watcher returns a watcher bounded by the config, with overrides applied
// for positive values
func (a *App) Watcher(backend argocd.Backend, creation, deployment int) *preview.Watcher {
	cfg := preview.WatchConfig{
		CreationTimeout:   a.Config.Watch.CreationTimeout.Std(),
		DeploymentTimeout: a.Config.Watch.DeploymentTimeout.Std(),
		PollInterval:      a.Config.Watch.PollInterval.Std(),
	}
	if creation > 0 {
		cfg.CreationTimeout = seconds(creation)
	}
	if deployment > 0 {
		cfg.DeploymentTimeout = seconds(deployment)
	}
	return preview.NewWatcher(backend, backend, cfg, a.Clock, a.Logger)
}

func (a *App) Inspector(status argocd.StatusClient) *preview.Inspector {
	return preview.NewInspector(a.VCS, a.Correlator(), status, preview.InspectorConfig{
		Repos:  a.Config.ResolvedRepos(),
		Policy: a.Config.Cleanup.MergedPRPolicy,
		AppURL: a.Config.AppURL,
	}, a.Logger)
}

func (a *App) Cleaner() *preview.Cleaner {
	return preview.NewCleaner(a.VCS, a.Correlator(), a.GitHub, a.Config.ResolvedRepos(), a.Logger)
}

func (a *App) Resolver() *preview.Resolver {
	cfg := preview.ResolverConfig{NamespacePrefix: a.Config.ArgoCD.NamespacePrefix}
	if r, ok := a.Config.InfraRepo(); ok {
		cfg.InfraRepo = r
	}
	if apps := a.Config.AppRepos(); len(apps) > 0 {
		cfg.AppRepo = apps[0]
	}
	var namespaces argocd.NamespaceFinder
	if backend, err := a.ArgoCD(); err != nil {
		namespaces = unavailableArgoCD{err: err}
	} else {
		namespaces = backend
	}
	return preview.NewResolver(a.GitHub, a.VCS, namespaces, cfg, a.Logger)
}

// unavailableArgoCD answers every controller query with the backend
// connection error
type unavailableArgoCD struct{ err error }

func (u unavailableArgoCD) GetStatus(context.Context, string) (models.DeploymentStatus, error) {
	return models.DeploymentStatus{}, u.err
}

func (u unavailableArgoCD) AppForNamespace(context.Context, string) (string, error) {
	return "", u.err
}

// AppFor picks the application name of a preview: preview-pr-N when the
// infra PR is known or can be found, preview-<id> when no infra PR exists.
// It fails when the PR service cannot answer.
func (a *App) AppFor(ctx context.Context, id models.PreviewID, prNumber uint64) (string, uint64, error) {
	if prNumber > 0 {
		return models.PRAppName(prNumber), prNumber, nil
	}
	infra, ok := a.Config.InfraRepo()
	if !ok {
		return id.AppName(), 0, nil
	}
	pr, err := a.Correlator().FindPR(ctx, infra.Name, preview.PRQuery{PreviewID: id})
	switch {
	case err == nil:
		return models.PRAppName(pr.Number), pr.Number, nil
	case errors.Is(err, github.ErrPRNotFound):
		a.Logger.Debug("no open infra PR, using fallback app name", "preview", id)
		return id.AppName(), 0, nil
	default:
		return "", 0, &appLookupError{ID: id, Err: err}
	}
}

// appLookupError means the infra PR of a preview could not be looked up
type appLookupError struct {
	ID  models.PreviewID
	Err error
}

func (e *appLookupError) Error() string {
	return "cannot determine the application of " + string(e.ID) + ": " + e.Err.Error()
}

func (e *appLookupError) Unwrap() error {
	return e.Err
}

// ErrorMessage renders err for the terminal, adding a hint for common causes
func ErrorMessage(err error) string {
	msg := ui.StatusLine("error", "error", err.Error())
	var unreachable *github.UnreachableError
	var lookup *appLookupError
	if errors.As(err, &lookup) {
		msg += "\n" + ui.Hint("pass --pr N with the infra PR number to skip the lookup")
	}
	switch {
	case errors.As(err, &unreachable) && strings.Contains(unreachable.Reason, "gh auth login"):
		msg += "\n" + ui.Hint("run 'gh auth login'")
	case errors.Is(err, argocd.ErrAppNotFound):
		msg += "\n" + ui.Hint("the application appears once the infra PR is open; check with inspect-preview")
	}
	return msg
}
