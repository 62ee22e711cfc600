package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/numberone-ai/previewctl/internal/execrun"
	"github.com/numberone-ai/previewctl/internal/models"
)

// ErrPRNotFound means the lookup succeeded and no matching PR exists
var ErrPRNotFound = errors.New("pull request not found")

// UnreachableError means the PR service could not answer: gh missing, not
// authenticated, network or API failure. It never means "no PR".
type UnreachableError struct {
	Op     string
	Reason string
	Err    error
}

func (e *UnreachableError) Error() string {
	return "github unreachable (" + e.Op + "): " + e.Reason
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// StateFilter selects PR states for ListPRs
type StateFilter string

const (
	StateOpen StateFilter = "open"
	StateAll  StateFilter = "all"
)

// listLimit bounds gh pr list; preview branches have at most a handful of PRs
const listLimit = 100

// Client wraps the gh CLI for one GitHub organisation
type Client struct {
	Org    string
	runner execrun.Runner
	logger *slog.Logger
}

// NewClient returns a client for org using runner to invoke gh
func NewClient(org string, runner execrun.Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{Org: org, runner: runner, logger: logger}
}

func (c *Client) slug(repo string) string {
	if strings.Contains(repo, "/") {
		return repo
	}
	return c.Org + "/" + repo
}

// CheckAuth verifies gh CLI is authenticated
func (c *Client) CheckAuth(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, "", "gh", "auth", "status"); err != nil {
		return c.unreachable("auth status", err)
	}
	return nil
}

// GetPR gets PR details by number
func (c *Client) GetPR(ctx context.Context, repo string, number uint64) (*models.PullRequestRecord, error) {
	res, err := c.runner.Run(ctx, "", "gh", "pr", "view",
		strconv.FormatUint(number, 10),
		"--repo", c.slug(repo),
		"--json", models.GhPrFields,
	)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s#%d: %w", repo, number, ErrPRNotFound)
		}
		return nil, c.unreachable("pr view", err)
	}

	var pr models.GhPr
	if err := json.Unmarshal(res.Stdout, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse gh pr view output: %w", err)
	}
	rec := pr.Record(repo)
	return &rec, nil
}

// ListPRs lists PRs whose head branch is head
func (c *Client) ListPRs(ctx context.Context, repo, head string, state StateFilter) ([]models.PullRequestRecord, error) {
	args := []string{"pr", "list",
		"--repo", c.slug(repo),
		"--state", string(state),
		"--limit", strconv.Itoa(listLimit),
		"--json", models.GhPrFields,
	}
	if head != "" {
		args = append(args, "--head", head)
	}
	res, err := c.runner.Run(ctx, "", "gh", args...)
	if err != nil {
		return nil, c.unreachable("pr list", err)
	}

	var prs []models.GhPr
	if err := json.Unmarshal(res.Stdout, &prs); err != nil {
		return nil, fmt.Errorf("failed to parse gh pr list output: %w", err)
	}
	out := make([]models.PullRequestRecord, 0, len(prs))
	for _, pr := range prs {
		out = append(out, pr.Record(repo))
	}
	c.logger.Debug("listed PRs", "repo", repo, "head", head, "state", state, "count", len(out))
	return out, nil
}

// ClosePR closes a PR with a comment. Closing an already closed PR is not an error.
func (c *Client) ClosePR(ctx context.Context, repo string, number uint64, comment string) error {
	args := []string{"pr", "close",
		strconv.FormatUint(number, 10),
		"--repo", c.slug(repo),
	}
	if comment != "" {
		args = append(args, "--comment", comment)
	}
	_, err := c.runner.Run(ctx, "", "gh", args...)
	if err == nil {
		return nil
	}
	var exitErr *execrun.ExitError
	if errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "already closed") {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%s#%d: %w", repo, number, ErrPRNotFound)
	}
	return c.unreachable("pr close", err)
}

func (c *Client) unreachable(op string, err error) error {
	var missing *execrun.NotInstalledError
	if errors.As(err, &missing) {
		return &UnreachableError{Op: op, Reason: "gh CLI not installed", Err: err}
	}
	var exitErr *execrun.ExitError
	if errors.As(err, &exitErr) {
		reason := strings.TrimSpace(exitErr.Stderr)
		if strings.Contains(reason, "gh auth login") || strings.Contains(reason, "not logged") {
			reason = "not authenticated with GitHub CLI. Run 'gh auth login' first"
		}
		if reason == "" {
			reason = exitErr.Error()
		}
		return &UnreachableError{Op: op, Reason: reason, Err: err}
	}
	return &UnreachableError{Op: op, Reason: err.Error(), Err: err}
}

// isNotFound matches gh's messages for a PR that does not exist
func isNotFound(err error) bool {
	var exitErr *execrun.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := exitErr.Stderr
	return strings.Contains(msg, "Could not resolve to a PullRequest") ||
		strings.Contains(msg, "no pull requests found")
}
