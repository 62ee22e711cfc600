package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/numberone-ai/previewctl/internal/argocd"
	"github.com/numberone-ai/previewctl/internal/config"
	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
)

// RefReader is the read-only version control surface of the inspector
type RefReader interface {
	TagInfo(repoPath, tag string) (git.TagInfo, error)
	BranchLocation(repoPath, branch string) (models.BranchLocation, error)
}

// InspectorConfig holds the configured repos and reporting policy
type InspectorConfig struct {
	Repos  []models.RepoTarget
	Policy config.MergedPRPolicy
	// AppURL links an application name to the controller UI (optional)
	AppURL func(app string) string
}

// InspectOptions narrows one inspection
type InspectOptions struct {
	// PRNumber is a known infra PR; it selects the preview-pr-N application
	PRNumber uint64
}

// Inspector aggregates tag, branch, PR and deployment state of a preview
type Inspector struct {
	refs       RefReader
	correlator *Correlator
	status     argocd.StatusClient
	cfg        InspectorConfig
	clock      Clock
	logger     *slog.Logger
}

func NewInspector(refs RefReader, correlator *Correlator, status argocd.StatusClient, cfg InspectorConfig, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Policy == "" {
		cfg.Policy = config.MergedNeedsCleanup
	}
	return &Inspector{refs: refs, correlator: correlator, status: status, cfg: cfg, clock: RealClock, logger: logger}
}

// Inspect never fails as a whole: each sub-query that cannot be answered is
// recorded as unavailable on its own field
func (in *Inspector) Inspect(ctx context.Context, id models.PreviewID, opts InspectOptions) models.PreviewReport {
	report := models.PreviewReport{
		ID:          id,
		GeneratedAt: in.clock.Now(),
		Repos:       make([]models.RepoReport, len(in.cfg.Repos)),
	}

	var wg sync.WaitGroup
	for i, repo := range in.cfg.Repos {
		wg.Add(1)
		go func(i int, repo models.RepoTarget) {
			defer wg.Done()
			report.Repos[i] = in.inspectRepo(ctx, id, repo, opts)
		}(i, repo)
	}
	wg.Wait()

	report.Deployment = in.inspectDeployment(ctx, id, opts, report.Repos)
	report.Recommendation = in.recommend(report)
	in.logger.Info("inspection finished", "preview", id, "verdict", report.Recommendation.Verdict,
		"unavailable", len(report.Unavailable()))
	return report
}

func (in *Inspector) inspectRepo(ctx context.Context, id models.PreviewID, repo models.RepoTarget, opts InspectOptions) models.RepoReport {
	out := models.RepoReport{
		Repo:   repo,
		Tag:    models.TagState{Name: id.TagName()},
		Branch: models.BranchState{Name: id.BranchName(), Location: models.BranchAbsent},
	}

	if info, err := in.refs.TagInfo(repo.Path, id.TagName()); err != nil {
		out.Tag.Unavailable = err.Error()
	} else if info.Exists {
		date := info.Date
		out.Tag.Exists = true
		out.Tag.Commit = info.Commit
		out.Tag.Date = &date
	}

	if loc, err := in.refs.BranchLocation(repo.Path, id.BranchName()); err != nil {
		out.Branch.Unavailable = err.Error()
	} else {
		out.Branch.Location = loc
	}

	query := PRQuery{PreviewID: id, IncludeClosed: true}
	if repo.IsInfra() && opts.PRNumber > 0 {
		query = PRQuery{Number: opts.PRNumber}
	}
	pr, err := in.correlator.FindPR(ctx, repo.Name, query)
	switch {
	case errors.Is(err, github.ErrPRNotFound):
	case err != nil:
		out.PR.Unavailable = err.Error()
	default:
		out.PR.PR = pr
	}
	return out
}

func (in *Inspector) inspectDeployment(ctx context.Context, id models.PreviewID, opts InspectOptions, repos []models.RepoReport) models.DeploymentState {
	dep := models.DeploymentState{App: id.AppName()}
	lookupErr := ""
	if opts.PRNumber > 0 {
		dep.InfraPR = opts.PRNumber
	} else {
		for _, r := range repos {
			if !r.Repo.IsInfra() {
				continue
			}
			if r.PR.PR != nil {
				dep.InfraPR = r.PR.PR.Number
			}
			lookupErr = r.PR.Unavailable
		}
	}
	if dep.InfraPR > 0 {
		dep.App = models.PRAppName(dep.InfraPR)
	}
	if in.cfg.AppURL != nil {
		dep.URL = in.cfg.AppURL(dep.App)
	}
	// Without the infra PR the application name is unknown, so a missing
	// preview-<id> says nothing about the real application
	if lookupErr != "" {
		dep.Unavailable = "infra PR lookup unavailable: " + lookupErr
		return dep
	}

	status, err := in.status.GetStatus(ctx, dep.App)
	switch {
	case errors.Is(err, argocd.ErrAppNotFound):
	case err != nil:
		dep.Unavailable = err.Error()
	default:
		dep.Exists = true
		dep.Status = &status
	}
	return dep
}

func (in *Inspector) recommend(report models.PreviewReport) models.Recommendation {
	var artifacts []string
	var prs, finished int
	for _, r := range report.Repos {
		if r.Tag.Exists {
			artifacts = append(artifacts, fmt.Sprintf("tag %s in %s", r.Tag.Name, r.Repo.Name))
		}
		if r.Branch.Exists() {
			artifacts = append(artifacts, fmt.Sprintf("branch %s in %s (%s)", r.Branch.Name, r.Repo.Name, r.Branch.Location))
		}
		if r.PR.PR != nil {
			prs++
			if r.PR.PR.IsFinished() {
				finished++
			}
		}
	}
	appExists := report.Deployment.Exists
	if appExists {
		artifacts = append(artifacts, "application "+report.Deployment.App)
	}

	switch {
	case len(artifacts) == 0 && len(report.Unavailable()) > 0:
		return models.Recommendation{
			Verdict: models.VerdictIncomplete,
			Action:  "some sources were unavailable; rerun inspect-preview once they are reachable",
		}
	case len(artifacts) == 0:
		return models.Recommendation{Verdict: models.VerdictClean, Action: "nothing to clean up"}
	case in.cfg.Policy == config.MergedClean && !appExists && prs > 0 && finished == prs:
		return models.Recommendation{
			Verdict:   models.VerdictClean,
			Artifacts: artifacts,
			Action:    "all pull requests are merged or closed; leftovers ignored by cleanup.merged_pr_policy",
		}
	default:
		return models.Recommendation{
			Verdict:   models.VerdictNeedsCleanup,
			Artifacts: artifacts,
			Action:    "previewctl delete-preview " + string(report.ID),
		}
	}
}
