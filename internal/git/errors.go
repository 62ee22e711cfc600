package git

import (
	"errors"
	"strings"
)

// ErrTagExists is returned by CreateTag when the tag exists and force is off
var ErrTagExists = errors.New("tag already exists")

// GitError provides better context for git command failures
type GitError struct {
	Command string
	Output  string
}

func (e *GitError) Error() string {
	return "git " + e.Command + ": " + e.Output
}

// BranchNotFoundError indicates a branch was found neither locally nor on origin
type BranchNotFoundError struct {
	Repo     string
	Branches []string
}

func (e *BranchNotFoundError) Error() string {
	msg := "branch not found: " + strings.Join(e.Branches, ", ")
	if e.Repo != "" {
		msg = e.Repo + ": " + msg
	}
	return msg
}

// RepoNotFoundError indicates the configured path is not a git repository
type RepoNotFoundError struct {
	Path string
	Err  error
}

func (e *RepoNotFoundError) Error() string {
	return "repository not found at " + e.Path
}

func (e *RepoNotFoundError) Unwrap() error {
	return e.Err
}

// DetachedHeadError indicates there is no checked-out branch to tag from
type DetachedHeadError struct {
	Path string
}

func (e *DetachedHeadError) Error() string {
	return "HEAD is detached in " + e.Path + " (pass --branch)"
}
