package preview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
)

// PRService is the pull request surface of the gh client
type PRService interface {
	GetPR(ctx context.Context, repo string, number uint64) (*models.PullRequestRecord, error)
	ListPRs(ctx context.Context, repo, head string, state github.StateFilter) ([]models.PullRequestRecord, error)
}

// PRQuery selects a PR either by number or by the preview branch convention
type PRQuery struct {
	Number    uint64
	PreviewID models.PreviewID
	// IncludeClosed also matches merged and closed PRs
	IncludeClosed bool
}

// Correlator resolves pull requests for preview environments
type Correlator struct {
	prs    PRService
	logger *slog.Logger
}

func NewCorrelator(prs PRService, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Correlator{prs: prs, logger: logger}
}

// FindPR returns the PR for q in repo. A missing PR is github.ErrPRNotFound;
// service failures are *github.UnreachableError.
func (c *Correlator) FindPR(ctx context.Context, repo string, q PRQuery) (*models.PullRequestRecord, error) {
	if q.Number > 0 {
		return c.prs.GetPR(ctx, repo, q.Number)
	}
	if q.PreviewID == "" {
		return nil, &models.ValidationError{Field: "pr query", Value: "", Reason: "needs a PR number or preview id"}
	}

	branch := q.PreviewID.BranchName()
	state := github.StateOpen
	if q.IncludeClosed {
		state = github.StateAll
	}
	prs, err := c.prs.ListPRs(ctx, repo, branch, state)
	if err != nil {
		return nil, err
	}

	// gh lists newest first; an open PR wins over older closed ones
	var match *models.PullRequestRecord
	for i := range prs {
		if prs[i].HeadBranch != branch {
			continue
		}
		if prs[i].State == models.PROpen {
			match = &prs[i]
			break
		}
		if match == nil {
			match = &prs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%s: no PR with head %s: %w", repo, branch, github.ErrPRNotFound)
	}
	c.logger.Debug("correlated PR", "repo", repo, "number", match.Number, "state", match.State)
	return match, nil
}
