package git

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// PreviewTagPrefix starts every preview tag name
const PreviewTagPrefix = "preview-"

// IsAncestor reports whether the commit tag points at is reachable from ref.
// ref is anything rev-parse accepts, e.g. "origin/feature/x". A missing tag is
// an ancestor of nothing; a missing ref is a BranchNotFoundError.
func (l *Local) IsAncestor(repoPath, tag, ref string) (bool, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return false, err
	}

	tagRef, err := repo.Tag(tag)
	if errors.Is(err, git.ErrTagNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &GitError{Command: "rev-parse " + tag, Output: err.Error()}
	}
	tagged, err := tagCommit(repo, tagRef)
	if err != nil {
		return false, &GitError{Command: "log -1 " + tag, Output: err.Error()}
	}

	headHash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return false, &BranchNotFoundError{Repo: repoPath, Branches: []string{ref}}
	}
	head, err := repo.CommitObject(*headHash)
	if err != nil {
		return false, &GitError{Command: "log -1 " + ref, Output: err.Error()}
	}

	if tagged.Hash == head.Hash {
		return true, nil
	}
	ok, err := tagged.IsAncestor(head)
	if err != nil {
		return false, &GitError{Command: "merge-base --is-ancestor " + tag + " " + ref, Output: err.Error()}
	}
	return ok, nil
}

// PreviewTags lists the local preview-* tags, newest first. Annotated tags
// are dated by the tagger, lightweight ones by the tagged commit.
func (l *Local) PreviewTags(repoPath string) ([]string, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, &GitError{Command: "tag -l", Output: err.Error()}
	}

	type dated struct {
		name string
		when time.Time
	}
	var tags []dated
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !strings.HasPrefix(name, PreviewTagPrefix) {
			return nil
		}
		if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
			tags = append(tags, dated{name, tagObj.Tagger.When})
			return nil
		}
		commit, err := repo.CommitObject(ref.Hash())
		if err != nil {
			// tags of trees or blobs never mark a preview
			return nil
		}
		tags = append(tags, dated{name, commit.Committer.When})
		return nil
	})
	if err != nil {
		return nil, &GitError{Command: "tag -l", Output: err.Error()}
	}

	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].when.Equal(tags[j].when) {
			return tags[i].name < tags[j].name
		}
		return tags[i].when.After(tags[j].when)
	})
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.name
	}
	return out, nil
}

// RemotePreviewBranches returns the ids of the preview/* branches on the
// remote, as last fetched
func (l *Local) RemotePreviewBranches(repoPath string) ([]string, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return nil, err
	}
	refs, err := repo.References()
	if err != nil {
		return nil, &GitError{Command: "branch -r", Output: err.Error()}
	}

	prefix := plumbing.NewRemoteReferenceName(l.remote(), "preview/").String()
	var ids []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if id, ok := strings.CutPrefix(ref.Name().String(), prefix); ok && id != "" {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, &GitError{Command: "branch -r", Output: err.Error()}
	}
	sort.Strings(ids)
	return ids, nil
}
