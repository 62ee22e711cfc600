package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
)

// CleanupVCS is the version control surface the cleaner needs
type CleanupVCS interface {
	TagInfo(repoPath, tag string) (git.TagInfo, error)
	DeleteTag(repoPath, tag string) (bool, error)
	DeleteRemoteTag(ctx context.Context, repoPath, tag string) error
}

// PRCloser closes pull requests
type PRCloser interface {
	ClosePR(ctx context.Context, repo string, number uint64, comment string) error
}

// DeleteOptions controls one delete-preview invocation
type DeleteOptions struct {
	DryRun bool
}

// Cleaner tears a preview environment down: it closes the infra PR, which
// makes the controller remove the application, and deletes the preview tags
type Cleaner struct {
	vcs        CleanupVCS
	correlator *Correlator
	closer     PRCloser
	repos      []models.RepoTarget
	logger     *slog.Logger
}

// NewCleaner returns a cleaner for repos; the infra repo among them gets its PR closed
func NewCleaner(vcs CleanupVCS, correlator *Correlator, closer PRCloser, repos []models.RepoTarget, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{vcs: vcs, correlator: correlator, closer: closer, repos: repos, logger: logger}
}

// Delete removes every artifact independently; one failure never stops the others
func (c *Cleaner) Delete(ctx context.Context, id models.PreviewID, opts DeleteOptions) models.CleanupReport {
	report := models.CleanupReport{ID: id, DryRun: opts.DryRun}

	for _, repo := range c.repos {
		if repo.IsInfra() {
			report.Results = append(report.Results, c.closeInfraPR(ctx, id, repo, opts))
		}
	}

	var apps []models.RepoTarget
	for _, repo := range c.repos {
		if !repo.IsInfra() {
			apps = append(apps, repo)
		}
	}
	tags := make([]models.CleanupResult, len(apps))
	var wg sync.WaitGroup
	for i, repo := range apps {
		wg.Add(1)
		go func(i int, repo models.RepoTarget) {
			defer wg.Done()
			tags[i] = c.deleteTag(ctx, id, repo, opts)
		}(i, repo)
	}
	wg.Wait()
	report.Results = append(report.Results, tags...)

	c.logger.Info("cleanup finished", "preview", id, "dry_run", opts.DryRun, "failed", report.Failed())
	return report
}

func (c *Cleaner) closeInfraPR(ctx context.Context, id models.PreviewID, repo models.RepoTarget, opts DeleteOptions) models.CleanupResult {
	res := models.CleanupResult{Target: "PR " + repo.Name + " " + id.BranchName()}
	pr, err := c.correlator.FindPR(ctx, repo.Name, PRQuery{PreviewID: id})
	switch {
	case errors.Is(err, github.ErrPRNotFound):
		res.Status = models.CleanupSkipped
		res.Detail = "no open PR for " + id.BranchName()
		return res
	case err != nil:
		res.Status = models.CleanupFailed
		res.Detail = err.Error()
		return res
	}

	res.Target = fmt.Sprintf("PR %s#%d", repo.Name, pr.Number)
	if opts.DryRun {
		res.Status = models.CleanupSkipped
		res.Detail = "dry run: would close " + pr.URL
		return res
	}
	if err := c.closer.ClosePR(ctx, repo.Name, pr.Number, "Closing preview environment: "+string(id)); err != nil {
		res.Status = models.CleanupFailed
		res.Detail = err.Error()
		return res
	}
	res.Status = models.CleanupRemoved
	res.Detail = "closed; the application is removed by the controller shortly"
	return res
}

func (c *Cleaner) deleteTag(ctx context.Context, id models.PreviewID, repo models.RepoTarget, opts DeleteOptions) models.CleanupResult {
	tag := id.TagName()
	res := models.CleanupResult{Target: fmt.Sprintf("tag %s in %s", tag, repo.Name)}
	if err := ctx.Err(); err != nil {
		res.Status = models.CleanupFailed
		res.Detail = "cancelled"
		return res
	}

	info, err := c.vcs.TagInfo(repo.Path, tag)
	if err != nil {
		var notFound *git.RepoNotFoundError
		res.Status = models.CleanupFailed
		if errors.As(err, &notFound) {
			res.Status = models.CleanupSkipped
		}
		res.Detail = err.Error()
		return res
	}

	if opts.DryRun {
		res.Status = models.CleanupSkipped
		if info.Exists {
			res.Detail = "dry run: would delete local and remote tag"
		} else {
			res.Detail = "dry run: would delete remote tag if present"
		}
		return res
	}

	local := false
	if info.Exists {
		if local, err = c.vcs.DeleteTag(repo.Path, tag); err != nil {
			res.Status = models.CleanupFailed
			res.Detail = err.Error()
			return res
		}
	}

	remote := true
	if err := c.vcs.DeleteRemoteTag(context.WithoutCancel(ctx), repo.Path, tag); err != nil {
		if !remoteRefMissing(err) {
			res.Status = models.CleanupFailed
			res.Detail = err.Error()
			return res
		}
		remote = false
	}

	switch {
	case local && remote:
		res.Status, res.Detail = models.CleanupRemoved, "deleted locally and on remote"
	case remote:
		res.Status, res.Detail = models.CleanupRemoved, "deleted on remote"
	case local:
		res.Status, res.Detail = models.CleanupRemoved, "deleted locally (not on remote)"
	default:
		res.Status, res.Detail = models.CleanupSkipped, "tag does not exist"
	}
	return res
}

func remoteRefMissing(err error) bool {
	var gitErr *git.GitError
	return errors.As(err, &gitErr) && strings.Contains(gitErr.Output, "remote ref does not exist")
}
