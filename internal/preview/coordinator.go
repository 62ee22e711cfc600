// Package preview implements the preview environment lifecycle: tagging
// application repos, correlating pull requests, watching the deployment and
// auditing what is left behind.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/models"
)

// TagVCS is the version control surface the coordinator needs
type TagVCS interface {
	CurrentBranch(repoPath string) (string, error)
	BranchCommit(repoPath, branch string) (string, models.BranchLocation, error)
	TagInfo(repoPath, tag string) (git.TagInfo, error)
	CreateTag(repoPath, tag, commit string, force bool) error
	PushTag(ctx context.Context, repoPath, tag string, force bool) error
}

// TagRecorder persists tag creation events
type TagRecorder interface {
	Append(records ...models.TagRecord) error
}

// TagRequest describes one create-preview invocation
type TagRequest struct {
	ID    models.PreviewID
	Repos []models.RepoTarget
	// Branch to tag; empty uses each repo's checked-out branch
	Branch string
	Force  bool
	// DryRun creates local tags without pushing
	DryRun bool
}

// Coordinator creates and pushes preview tags across repos
type Coordinator struct {
	vcs     TagVCS
	history TagRecorder
	clock   Clock
	logger  *slog.Logger

	// OnResult is called as each repo finishes (from its goroutine)
	OnResult func(models.TagResult)
}

// NewCoordinator returns a coordinator; history may be nil
func NewCoordinator(vcs TagVCS, history TagRecorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{vcs: vcs, history: history, clock: RealClock, logger: logger}
}

// CreateTags tags every requested repo independently and in parallel. The
// returned batch has one entry per repo in request order.
func (c *Coordinator) CreateTags(ctx context.Context, req TagRequest) models.TagBatch {
	results := make(models.TagBatch, len(req.Repos))

	var wg sync.WaitGroup
	for i, repo := range req.Repos {
		wg.Add(1)
		go func(i int, repo models.RepoTarget) {
			defer wg.Done()
			results[i] = c.tagRepo(ctx, req, repo)
			if c.OnResult != nil {
				c.OnResult(results[i])
			}
		}(i, repo)
	}
	wg.Wait()

	c.logger.Info("tag batch finished", "preview", req.ID, "summary", results.Summary())
	return results
}

func (c *Coordinator) tagRepo(ctx context.Context, req TagRequest, repo models.RepoTarget) models.TagResult {
	log := c.logger.With("repo", repo.Name)
	if err := ctx.Err(); err != nil {
		return models.TagResult{Repo: repo.Name, Status: models.TagFailed, Reason: "cancelled", Err: err}
	}

	tag := req.ID.TagName()
	branch := req.Branch
	if branch == "" {
		current, err := c.vcs.CurrentBranch(repo.Path)
		if err != nil {
			return models.Failed(repo.Name, err, hintFor(err))
		}
		branch = current
	}

	commit, _, err := c.vcs.BranchCommit(repo.Path, branch)
	if err != nil {
		return models.Failed(repo.Name, err, hintFor(err))
	}

	existing, err := c.vcs.TagInfo(repo.Path, tag)
	if err != nil {
		return models.Failed(repo.Name, err, hintFor(err))
	}
	if existing.Exists && !req.Force {
		log.Debug("tag exists, skipping", "tag", tag, "commit", existing.Commit)
		return models.Skipped(repo.Name, TagConflict, TagConflictHint)
	}

	if err := c.vcs.CreateTag(repo.Path, tag, commit, req.Force); err != nil {
		if errors.Is(err, git.ErrTagExists) {
			return models.Skipped(repo.Name, TagConflict, TagConflictHint)
		}
		return models.Failed(repo.Name, err, hintFor(err))
	}
	record := models.TagRecord{
		Repo:       repo.Name,
		Tag:        tag,
		Commit:     commit,
		Forced:     req.Force && existing.Exists,
		RecordedAt: c.clock.Now(),
	}
	log.Info("tag created", "tag", tag, "branch", branch, "commit", record.ShortCommit())

	if !req.DryRun {
		// A started push always completes so the remote is never left half-updated
		if err := c.vcs.PushTag(context.WithoutCancel(ctx), repo.Path, tag, req.Force); err != nil {
			c.record(log, record)
			res := models.Failed(repo.Name, fmt.Errorf("push %s: %w", tag, err), "local tag kept; check remote access and rerun with --force")
			res.Record = &record
			return res
		}
		record.Pushed = true
	}

	c.record(log, record)
	return models.Created(repo.Name, record)
}

func (c *Coordinator) record(log *slog.Logger, rec models.TagRecord) {
	if c.history == nil {
		return
	}
	if err := c.history.Append(rec); err != nil {
		log.Warn("failed to record tag history", "err", err)
	}
}

// hintFor maps per-repo errors to a remediation hint
func hintFor(err error) string {
	var repoErr *git.RepoNotFoundError
	var branchErr *git.BranchNotFoundError
	var detached *git.DetachedHeadError
	switch {
	case errors.As(err, &repoErr):
		return "check the repo path in the config"
	case errors.As(err, &branchErr):
		return "fetch the branch or pass --branch"
	case errors.As(err, &detached):
		return "check out a branch or pass --branch"
	default:
		return ""
	}
}
