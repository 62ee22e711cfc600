package git

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/numberone-ai/previewctl/internal/testutil"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func annotatedTag(t *testing.T, repo *testutil.Repo, name, commit string, when time.Time) {
	t.Helper()
	_, err := repo.Git.CreateTag(name, plumbing.NewHash(commit), &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Test User", Email: "test@example.com", When: when},
		Message: name,
	})
	if err != nil {
		t.Fatalf("tag %s: %v", name, err)
	}
}

func TestIsAncestor(t *testing.T) {
	repo := testutil.InitRepo(t)
	base := repo.Head()
	repo.Checkout("feature/x")
	tagged := repo.Commit("feature work")
	tip := repo.Commit("more work")
	repo.SetRemoteBranch("feature/x", tip)
	repo.Checkout("master")
	other := repo.Commit("unrelated")

	l := NewLocal()
	for tag, commit := range map[string]string{"preview-base": base, "preview-feature": tagged, "preview-tip": tip, "preview-other": other} {
		if err := l.CreateTag(repo.Path, tag, commit, false); err != nil {
			t.Fatalf("CreateTag %s: %v", tag, err)
		}
	}
	annotatedTag(t, repo, "preview-annotated", tagged, time.Now())

	cases := []struct {
		tag  string
		want bool
	}{
		{"preview-base", true},
		{"preview-feature", true},
		{"preview-annotated", true},
		{"preview-tip", true},
		{"preview-other", false},
		{"preview-missing", false},
	}
	for _, c := range cases {
		got, err := l.IsAncestor(repo.Path, c.tag, "origin/feature/x")
		if err != nil || got != c.want {
			t.Errorf("IsAncestor(%s, origin/feature/x) = %v, %v, want %v", c.tag, got, err, c.want)
		}
	}

	_, err := l.IsAncestor(repo.Path, "preview-base", "origin/missing")
	var notFound *BranchNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("missing ref error = %v, want BranchNotFoundError", err)
	}
}

func TestPreviewTagsNewestFirst(t *testing.T) {
	repo := testutil.InitRepo(t)
	head := repo.Head()
	day := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	annotatedTag(t, repo, "preview-older", head, day)
	annotatedTag(t, repo, "preview-newest", head, day.Add(48*time.Hour))
	annotatedTag(t, repo, "preview-middle", head, day.Add(24*time.Hour))
	if err := NewLocal().CreateTag(repo.Path, "v1.0.0", head, false); err != nil {
		t.Fatal(err)
	}

	tags, err := NewLocal().PreviewTags(repo.Path)
	if err != nil {
		t.Fatalf("PreviewTags: %v", err)
	}
	want := []string{"preview-newest", "preview-middle", "preview-older"}
	if !slices.Equal(tags, want) {
		t.Fatalf("PreviewTags = %v, want %v", tags, want)
	}
}

func TestRemotePreviewBranches(t *testing.T) {
	repo := testutil.InitRepo(t)
	head := repo.Head()
	repo.SetRemoteBranch("preview/search-v2", head)
	repo.SetRemoteBranch("preview/docproc-extraction-pipeline", head)
	repo.SetRemoteBranch("feature/x", head)
	repo.Checkout("preview/local-only")

	ids, err := NewLocal().RemotePreviewBranches(repo.Path)
	if err != nil {
		t.Fatalf("RemotePreviewBranches: %v", err)
	}
	want := []string{"docproc-extraction-pipeline", "search-v2"}
	if !slices.Equal(ids, want) {
		t.Fatalf("RemotePreviewBranches = %v, want %v", ids, want)
	}
}
