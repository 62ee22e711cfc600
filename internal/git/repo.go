package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultRemote is the remote tags are pushed to and branches looked up on
const DefaultRemote = "origin"

// TagInfo describes a tag found in a local repository
type TagInfo struct {
	Exists bool
	// Commit is the full hash of the tagged commit
	Commit string
	// Date is the committer date of the tagged commit
	Date time.Time
}

// Local reads and writes refs in local checkouts. Reads and local ref edits go
// through go-git; network operations use the git CLI to inherit the SSH agent.
type Local struct {
	Remote string
}

// NewLocal returns a Local using the origin remote
func NewLocal() *Local {
	return &Local{Remote: DefaultRemote}
}

func (l *Local) remote() string {
	if l.Remote == "" {
		return DefaultRemote
	}
	return l.Remote
}

// Open opens the repository at path, including linked worktrees
func Open(path string) (*git.Repository, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &RepoNotFoundError{Path: path, Err: err}
	}
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return nil, &RepoNotFoundError{Path: path, Err: err}
	}
	return repo, nil
}

// IsGitRepo checks if the path is a git repository
func IsGitRepo(path string) bool {
	_, err := Open(path)
	return err == nil
}

// CurrentBranch returns the checked-out branch name
func (l *Local) CurrentBranch(repoPath string) (string, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", &GitError{Command: "rev-parse HEAD", Output: err.Error()}
	}
	if !head.Name().IsBranch() {
		return "", &DetachedHeadError{Path: repoPath}
	}
	return head.Name().Short(), nil
}

// BranchCommit returns the tip of branch, preferring the local branch over
// the remote-tracking one
func (l *Local) BranchCommit(repoPath, branch string) (string, models.BranchLocation, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return "", models.BranchAbsent, err
	}
	if ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true); err == nil {
		return ref.Hash().String(), models.BranchLocal, nil
	}
	if ref, err := repo.Reference(plumbing.NewRemoteReferenceName(l.remote(), branch), true); err == nil {
		return ref.Hash().String(), models.BranchRemote, nil
	}
	return "", models.BranchAbsent, &BranchNotFoundError{Repo: repoPath, Branches: []string{branch}}
}

// BranchLocation reports whether branch exists locally, on the remote, or not at all
func (l *Local) BranchLocation(repoPath, branch string) (models.BranchLocation, error) {
	_, loc, err := l.BranchCommit(repoPath, branch)
	var notFound *BranchNotFoundError
	if errors.As(err, &notFound) {
		return models.BranchAbsent, nil
	}
	return loc, err
}

// TagInfo looks up a local tag and the commit it points at
func (l *Local) TagInfo(repoPath, tag string) (TagInfo, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return TagInfo{}, err
	}
	ref, err := repo.Tag(tag)
	if errors.Is(err, git.ErrTagNotFound) {
		return TagInfo{}, nil
	}
	if err != nil {
		return TagInfo{}, &GitError{Command: "rev-parse " + tag, Output: err.Error()}
	}

	commit, err := tagCommit(repo, ref)
	if err != nil {
		return TagInfo{}, &GitError{Command: "log -1 " + tag, Output: err.Error()}
	}
	return TagInfo{Exists: true, Commit: commit.Hash.String(), Date: commit.Committer.When}, nil
}

// tagCommit peels annotated tags down to their commit
func tagCommit(repo *git.Repository, ref *plumbing.Reference) (*object.Commit, error) {
	if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
		return tagObj.Commit()
	}
	return repo.CommitObject(ref.Hash())
}

// CreateTag points a lightweight tag at commit. An existing tag is replaced
// only when force is set, otherwise ErrTagExists is returned.
func (l *Local) CreateTag(repoPath, tag, commit string, force bool) error {
	repo, err := Open(repoPath)
	if err != nil {
		return err
	}
	hash := plumbing.NewHash(commit)
	if _, err := repo.CommitObject(hash); err != nil {
		return &GitError{Command: "tag " + tag, Output: "unknown commit " + commit}
	}

	if _, err := repo.Tag(tag); err == nil {
		if !force {
			return ErrTagExists
		}
		if err := repo.DeleteTag(tag); err != nil {
			return &GitError{Command: "tag -d " + tag, Output: err.Error()}
		}
	}

	if _, err := repo.CreateTag(tag, hash, nil); err != nil {
		return &GitError{Command: "tag " + tag, Output: err.Error()}
	}
	return nil
}

// DeleteTag removes a local tag; a missing tag is not an error
func (l *Local) DeleteTag(repoPath, tag string) (bool, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return false, err
	}
	if err := repo.DeleteTag(tag); err != nil {
		if errors.Is(err, git.ErrTagNotFound) {
			return false, nil
		}
		return false, &GitError{Command: "tag -d " + tag, Output: err.Error()}
	}
	return true, nil
}

// PushTag pushes a single tag to the remote using git CLI (to inherit SSH agent).
// The push of one ref is atomic on the remote.
func (l *Local) PushTag(ctx context.Context, repoPath, tag string, force bool) error {
	args := []string{"push", l.remote(), "refs/tags/" + tag}
	if force {
		args = append(args, "--force")
	}
	return l.run(ctx, repoPath, "push", args...)
}

// DeleteRemoteTag removes a tag from the remote using git CLI
func (l *Local) DeleteRemoteTag(ctx context.Context, repoPath, tag string) error {
	return l.run(ctx, repoPath, "push", "push", l.remote(), ":refs/tags/"+tag)
}

func (l *Local) run(ctx context.Context, repoPath, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath

	output, err := cmd.CombinedOutput()
	if err != nil {
		outputStr := strings.TrimSpace(string(output))
		// Provide a more helpful error message
		if outputStr == "" {
			outputStr = "failed to reach remote (check network/auth)"
		}
		return &GitError{Command: name, Output: outputStr}
	}
	return nil
}
