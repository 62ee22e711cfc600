// Package testutil builds throwaway git repositories for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a git repository created under t.TempDir()
type Repo struct {
	t    *testing.T
	Path string
	Git  *git.Repository
}

// InitRepo creates a repository with one commit on master
func InitRepo(t *testing.T) *Repo {
	t.Helper()

	path := filepath.Join(t.TempDir(), "repo")
	repo, err := git.PlainInit(path, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	r := &Repo{t: t, Path: path, Git: repo}
	r.Commit("initial commit")
	return r
}

// Commit writes a file on the current branch and commits it
func (r *Repo) Commit(message string) string {
	r.t.Helper()

	wt, err := r.Git.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	name := "file.txt"
	content := message + " " + time.Now().Format(time.RFC3339Nano)
	if err := os.WriteFile(filepath.Join(r.Path, name), []byte(content), 0o644); err != nil {
		r.t.Fatalf("write file: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		r.t.Fatalf("add: %v", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		r.t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

// Checkout switches to branch, creating it at HEAD when missing
func (r *Repo) Checkout(branch string) {
	r.t.Helper()

	wt, err := r.Git.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	name := plumbing.NewBranchReferenceName(branch)
	_, err = r.Git.Reference(name, true)
	create := err != nil
	if err := wt.Checkout(&git.CheckoutOptions{Branch: name, Create: create}); err != nil {
		r.t.Fatalf("checkout %s: %v", branch, err)
	}
}

// SetRemoteBranch creates refs/remotes/origin/<branch> at commit
func (r *Repo) SetRemoteBranch(branch, commit string) {
	r.t.Helper()

	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", branch), plumbing.NewHash(commit))
	if err := r.Git.Storer.SetReference(ref); err != nil {
		r.t.Fatalf("set remote ref: %v", err)
	}
}

// Head returns the commit HEAD points at
func (r *Repo) Head() string {
	r.t.Helper()

	head, err := r.Git.Head()
	if err != nil {
		r.t.Fatalf("head: %v", err)
	}
	return head.Hash().String()
}

// AddBareRemote creates a bare repository and registers it as origin
func (r *Repo) AddBareRemote() *git.Repository {
	r.t.Helper()

	barePath := filepath.Join(r.t.TempDir(), "remote.git")
	bare, err := git.PlainInit(barePath, true)
	if err != nil {
		r.t.Fatalf("init bare: %v", err)
	}
	if _, err := r.Git.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{barePath}}); err != nil {
		r.t.Fatalf("create remote: %v", err)
	}
	return bare
}
