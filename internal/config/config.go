package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"

	"github.com/pelletier/go-toml/v2"
)

// EnvConfigPath overrides the config file location
const EnvConfigPath = "PREVIEWCTL_CONFIG"

type Config struct {
	Workspace WorkspaceConfig     `toml:"workspace"`
	GitHub    GitHubConfig        `toml:"github"`
	Repos     []models.RepoTarget `toml:"repos"`
	ArgoCD    ArgoCDConfig        `toml:"argocd"`
	Watch     WatchConfig         `toml:"watch"`
	Cleanup   CleanupConfig       `toml:"cleanup"`
	History   HistoryConfig       `toml:"history"`

	// path the config was loaded from (not serialized)
	path string
}

type WorkspaceConfig struct {
	// Root is prepended to relative repo paths
	Root string `toml:"root"`
}

type GitHubConfig struct {
	Org string `toml:"org"`
}

// Backend selects how the deployment controller is queried
type Backend string

const (
	BackendCLI        Backend = "cli"
	BackendKubernetes Backend = "kubernetes"
)

type ArgoCDConfig struct {
	Backend Backend `toml:"backend"`
	// CLI backend
	Server  string `toml:"server"`
	GRPCWeb bool   `toml:"grpc_web"`
	// Kubernetes backend
	Namespace  string `toml:"namespace"`
	Kubeconfig string `toml:"kubeconfig"`
	Context    string `toml:"context"`
	// NamespacePrefix is followed by the infra PR number in the namespaces
	// preview applications deploy into
	NamespacePrefix string `toml:"namespace_prefix"`
	// UIURL is the applications page; the app name is appended
	UIURL string `toml:"ui_url"`
}

type WatchConfig struct {
	CreationTimeout   Duration `toml:"creation_timeout"`
	DeploymentTimeout Duration `toml:"deployment_timeout"`
	PollInterval      Duration `toml:"poll_interval"`
}

// MergedPRPolicy decides how leftovers of merged or closed PRs are reported
type MergedPRPolicy string

const (
	MergedNeedsCleanup MergedPRPolicy = "needs-cleanup"
	MergedClean        MergedPRPolicy = "clean"
)

type CleanupConfig struct {
	MergedPRPolicy MergedPRPolicy `toml:"merged_pr_policy"`
}

type HistoryConfig struct {
	Enabled bool     `toml:"enabled"`
	Path    string   `toml:"path"`
	MaxAge  Duration `toml:"max_age"`
}

func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root: "~/src/dem2-workspace",
		},
		GitHub: GitHubConfig{
			Org: "NumberOne-AI",
		},
		Repos: []models.RepoTarget{
			{Name: "dem2", Path: "repos/dem2", DefaultBranch: "main", Role: models.RoleApp},
			{Name: "dem2-webui", Path: "repos/dem2-webui", DefaultBranch: "main", Role: models.RoleApp},
			{Name: "dem2-infra", Path: "repos/dem2-infra", DefaultBranch: "main", Role: models.RoleInfra},
		},
		ArgoCD: ArgoCDConfig{
			Backend:         BackendCLI,
			Namespace:       "argocd",
			NamespacePrefix: "tusdi-preview-",
			UIURL:           "https://argo.n1-machina.dev/applications/",
		},
		Watch: WatchConfig{
			CreationTimeout:   Duration(60 * time.Second),
			DeploymentTimeout: Duration(600 * time.Second),
			PollInterval:      Duration(5 * time.Second),
		},
		Cleanup: CleanupConfig{
			MergedPRPolicy: MergedNeedsCleanup,
		},
		History: HistoryConfig{
			Enabled: true,
			MaxAge:  Duration(30 * 24 * time.Hour),
		},
	}
}

// Path returns the default config file location
func Path() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return expandTilde(p), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "previewctl.toml"), nil
}

// Load reads the config from the default location
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := DefaultConfig()
		return cfg, cfg.Validate()
	}
	return LoadFile(path, true)
}

// LoadFile reads path on top of the defaults. A missing file yields the
// defaults; with writeDefault they are also saved there (best effort).
func LoadFile(path string, writeDefault bool) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if writeDefault {
			_ = cfg.Save() // Best effort save
		}
		return cfg, cfg.Validate()
	}

	// Repos replace the defaults entirely rather than merging by index
	var reposOnly struct {
		Repos []models.RepoTarget `toml:"repos"`
	}
	if err := toml.Unmarshal(data, &reposOnly); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if reposOnly.Repos != nil {
		cfg.Repos = nil
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the orchestrator relies on
func (c *Config) Validate() error {
	var errs []error
	if c.GitHub.Org == "" {
		errs = append(errs, errors.New("github.org is required"))
	}
	if len(c.Repos) == 0 {
		errs = append(errs, errors.New("at least one [[repos]] entry is required"))
	}
	seen := make(map[string]bool)
	infra := 0
	for i, r := range c.Repos {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("repos[%d].name is required", i))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("repos[%d]: duplicate name %q", i, r.Name))
		}
		seen[r.Name] = true
		switch r.Role {
		case models.RoleApp:
		case models.RoleInfra:
			infra++
		default:
			errs = append(errs, fmt.Errorf("repos[%d] %q: role must be %q or %q", i, r.Name, models.RoleApp, models.RoleInfra))
		}
	}
	if infra > 1 {
		errs = append(errs, errors.New("only one repo may have role \"infra\""))
	}
	switch c.ArgoCD.Backend {
	case BackendCLI, BackendKubernetes:
	default:
		errs = append(errs, fmt.Errorf("argocd.backend must be %q or %q", BackendCLI, BackendKubernetes))
	}
	switch c.Cleanup.MergedPRPolicy {
	case MergedNeedsCleanup, MergedClean:
	default:
		errs = append(errs, fmt.Errorf("cleanup.merged_pr_policy must be %q or %q", MergedNeedsCleanup, MergedClean))
	}
	if c.Watch.PollInterval.Std() <= 0 {
		errs = append(errs, errors.New("watch.poll_interval must be positive"))
	}
	if c.Watch.CreationTimeout.Std() <= 0 || c.Watch.DeploymentTimeout.Std() <= 0 {
		errs = append(errs, errors.New("watch timeouts must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// File returns the path the config was loaded from ("" for pure defaults)
func (c *Config) File() string {
	return c.path
}

// RepoPath resolves a repo's checkout path against the workspace root
func (c *Config) RepoPath(r models.RepoTarget) string {
	p := expandTilde(r.Path)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandTilde(c.Workspace.Root), p)
}

// ResolvedRepos returns the configured repos with absolute paths
func (c *Config) ResolvedRepos() []models.RepoTarget {
	out := make([]models.RepoTarget, len(c.Repos))
	for i, r := range c.Repos {
		r.Path = c.RepoPath(r)
		out[i] = r
	}
	return out
}

// AppRepos returns the repos that receive preview tags
func (c *Config) AppRepos() []models.RepoTarget {
	var out []models.RepoTarget
	for _, r := range c.ResolvedRepos() {
		if r.Role == models.RoleApp {
			out = append(out, r)
		}
	}
	return out
}

// InfraRepo returns the repo carrying the preview branch, if configured
func (c *Config) InfraRepo() (models.RepoTarget, bool) {
	for _, r := range c.ResolvedRepos() {
		if r.IsInfra() {
			return r, true
		}
	}
	return models.RepoTarget{}, false
}

// SelectRepos picks repos by name, preserving the requested order
func (c *Config) SelectRepos(names []string) ([]models.RepoTarget, error) {
	if len(names) == 0 {
		return c.AppRepos(), nil
	}
	byName := make(map[string]models.RepoTarget)
	for _, r := range c.ResolvedRepos() {
		byName[r.Name] = r
	}
	out := make([]models.RepoTarget, 0, len(names))
	for _, n := range names {
		r, ok := byName[n]
		if !ok {
			return nil, &models.ValidationError{Field: "repo", Value: n, Reason: "not in configured repos"}
		}
		out = append(out, r)
	}
	return out, nil
}

// AppURL returns the controller UI link for an application
func (c *Config) AppURL(app string) string {
	if c.ArgoCD.UIURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.ArgoCD.UIURL, "/") + "/" + app
}

// HistoryPath returns the tag history file location
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return expandTilde(c.History.Path), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "previewctl-history.json"), nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
