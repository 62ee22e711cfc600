package preview

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
)

// memoryTags is a CleanupVCS over in-memory local and remote tag sets
type memoryTags struct {
	mu     sync.Mutex
	local  map[string]bool
	remote map[string]bool
	fail   map[string]error
}

func (m *memoryTags) TagInfo(repoPath, tag string) (git.TagInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return git.TagInfo{Exists: m.local[repoPath]}, nil
}

func (m *memoryTags) DeleteTag(repoPath, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existed := m.local[repoPath]
	delete(m.local, repoPath)
	return existed, nil
}

func (m *memoryTags) DeleteRemoteTag(ctx context.Context, repoPath, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[repoPath]; err != nil {
		return err
	}
	if !m.remote[repoPath] {
		return &git.GitError{Command: "push", Output: "error: unable to delete '" + tag + "': remote ref does not exist"}
	}
	delete(m.remote, repoPath)
	return nil
}

func TestDeleteClosesPRAndRemovesTags(t *testing.T) {
	tags := &memoryTags{
		local:  map[string]bool{"/ws/dem2": true},
		remote: map[string]bool{"/ws/dem2": true, "/ws/dem2-webui": true},
	}
	prs := &fakePRs{prs: map[string][]models.PullRequestRecord{"dem2-infra": {infraPR(91, scenarioID, models.PROpen)}}}

	report := NewCleaner(tags, NewCorrelator(prs, nil), prs, inspectRepos, nil).Delete(t.Context(), scenarioID, DeleteOptions{})

	if len(report.Results) != 3 || report.Failed() != 0 {
		t.Fatalf("report = %+v", report)
	}
	pr := report.Results[0]
	if pr.Target != "PR dem2-infra#91" || pr.Status != models.CleanupRemoved {
		t.Fatalf("PR result = %+v", pr)
	}
	if prs.prs["dem2-infra"][0].State != models.PRClosed {
		t.Fatal("PR was not closed")
	}
	if report.Results[1].Status != models.CleanupRemoved || report.Results[1].Detail != "deleted locally and on remote" {
		t.Fatalf("dem2 = %+v", report.Results[1])
	}
	if report.Results[2].Status != models.CleanupRemoved || report.Results[2].Detail != "deleted on remote" {
		t.Fatalf("dem2-webui = %+v", report.Results[2])
	}
}

func TestDeleteDryRunChangesNothing(t *testing.T) {
	tags := &memoryTags{local: map[string]bool{"/ws/dem2": true}, remote: map[string]bool{"/ws/dem2": true}}
	prs := &fakePRs{prs: map[string][]models.PullRequestRecord{"dem2-infra": {infraPR(91, scenarioID, models.PROpen)}}}

	report := NewCleaner(tags, NewCorrelator(prs, nil), prs, inspectRepos, nil).Delete(t.Context(), scenarioID, DeleteOptions{DryRun: true})

	for _, res := range report.Results {
		if res.Status != models.CleanupSkipped || !strings.HasPrefix(res.Detail, "dry run") {
			t.Fatalf("dry run result %+v", res)
		}
	}
	if !tags.local["/ws/dem2"] || !tags.remote["/ws/dem2"] || prs.prs["dem2-infra"][0].State != models.PROpen {
		t.Fatal("dry run modified state")
	}
}

func TestDeleteIsolatesFailures(t *testing.T) {
	tags := &memoryTags{
		local:  map[string]bool{"/ws/dem2": true, "/ws/dem2-webui": true},
		remote: map[string]bool{"/ws/dem2-webui": true},
		fail:   map[string]error{"/ws/dem2": &git.GitError{Command: "push", Output: "Permission denied (publickey)"}},
	}
	prs := &fakePRs{err: &github.UnreachableError{Op: "pr list", Reason: "gh CLI not installed"}}

	report := NewCleaner(tags, NewCorrelator(prs, nil), prs, inspectRepos, nil).Delete(t.Context(), scenarioID, DeleteOptions{})

	if report.Results[0].Status != models.CleanupFailed {
		t.Fatalf("PR result = %+v, want failed", report.Results[0])
	}
	if report.Results[1].Status != models.CleanupFailed {
		t.Fatalf("dem2 = %+v, want failed", report.Results[1])
	}
	if report.Results[2].Status != models.CleanupRemoved {
		t.Fatalf("dem2-webui = %+v, want removed", report.Results[2])
	}
	if report.Failed() != 2 {
		t.Fatalf("failed = %d", report.Failed())
	}
}

func TestDeleteNothingToRemove(t *testing.T) {
	tags := &memoryTags{}
	prs := &fakePRs{}
	report := NewCleaner(tags, NewCorrelator(prs, nil), prs, inspectRepos, nil).Delete(t.Context(), scenarioID, DeleteOptions{})
	for _, res := range report.Results {
		if res.Status != models.CleanupSkipped {
			t.Fatalf("result %+v, want skipped", res)
		}
	}
}
