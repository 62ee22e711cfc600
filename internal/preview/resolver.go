package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/numberone-ai/previewctl/internal/argocd"
	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
)

// IdentifierKind says how a user-supplied identifier names a preview
type IdentifierKind string

const (
	KindID          IdentifierKind = "id"
	KindGitTag      IdentifierKind = "git-tag"
	KindInfraBranch IdentifierKind = "infra-branch"
	KindArgoCDApp   IdentifierKind = "argocd-app"
	KindPR          IdentifierKind = "pr"
	KindGitBranch   IdentifierKind = "git-branch"
	KindNamespace   IdentifierKind = "gke-namespace"
)

// IdentifierKinds lists the accepted kinds in help order
var IdentifierKinds = []IdentifierKind{KindID, KindGitTag, KindInfraBranch, KindArgoCDApp, KindPR, KindGitBranch, KindNamespace}

// ErrPreviewNotFound means no preview tag could be tied to a branch
var ErrPreviewNotFound = errors.New("no preview found")

// AncestryReader finds the preview tags a branch contains
type AncestryReader interface {
	PreviewTags(repoPath string) ([]string, error)
	RemotePreviewBranches(repoPath string) ([]string, error)
	IsAncestor(repoPath, tag, ref string) (bool, error)
}

// Resolution is a resolved identifier. PRNumber is set when resolution went
// through the infra PR.
type Resolution struct {
	ID       models.PreviewID
	PRNumber uint64
}

// ResolverConfig names the repositories identifiers are looked up in
type ResolverConfig struct {
	InfraRepo models.RepoTarget
	// AppRepo is searched for preview tags by git-branch and application PRs
	AppRepo models.RepoTarget
	// Remote prefixes branch refs in AppRepo (default origin)
	Remote string
	// NamespacePrefix is followed by the infra PR number in preview
	// namespaces
	NamespacePrefix string
}

// Resolver maps tags, branches, application names, namespaces and PR numbers
// back to a preview id
type Resolver struct {
	prs        PRService
	refs       AncestryReader
	namespaces argocd.NamespaceFinder
	cfg        ResolverConfig
	logger     *slog.Logger
}

// NewResolver returns a resolver. refs and namespaces may be nil when the
// kinds that need them are not used.
func NewResolver(prs PRService, refs AncestryReader, namespaces argocd.NamespaceFinder, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Remote == "" {
		cfg.Remote = git.DefaultRemote
	}
	return &Resolver{prs: prs, refs: refs, namespaces: namespaces, cfg: cfg, logger: logger}
}

// Resolve parses value according to kind
func (r *Resolver) Resolve(ctx context.Context, kind IdentifierKind, value string) (Resolution, error) {
	switch kind {
	case KindID, "":
		return parse(value)
	case KindGitTag:
		rest, ok := strings.CutPrefix(value, git.PreviewTagPrefix)
		if !ok {
			return Resolution{}, invalid(kind, value, "must start with preview-")
		}
		return parse(rest)
	case KindInfraBranch:
		rest, ok := strings.CutPrefix(value, "preview/")
		if !ok {
			return Resolution{}, invalid(kind, value, "must start with preview/")
		}
		return parse(rest)
	case KindArgoCDApp:
		if n, ok := strings.CutPrefix(value, "preview-pr-"); ok {
			number, err := strconv.ParseUint(n, 10, 64)
			if err != nil || number == 0 {
				return Resolution{}, invalid(kind, value, "preview-pr- must be followed by a PR number")
			}
			return r.fromPR(ctx, number)
		}
		rest, ok := strings.CutPrefix(value, "preview-")
		if !ok {
			return Resolution{}, invalid(kind, value, "must be preview-pr-N or preview-ID")
		}
		return parse(rest)
	case KindPR:
		number, err := strconv.ParseUint(strings.TrimPrefix(value, "#"), 10, 64)
		if err != nil || number == 0 {
			return Resolution{}, invalid(kind, value, "must be a PR number")
		}
		return r.fromAnyPR(ctx, number)
	case KindGitBranch:
		if value == "" {
			return Resolution{}, invalid(kind, value, "must name a branch")
		}
		return r.fromBranch(ctx, value)
	case KindNamespace:
		if value == "" {
			return Resolution{}, invalid(kind, value, "must name a namespace")
		}
		return r.fromNamespace(ctx, value)
	default:
		return Resolution{}, invalid("identifier kind", string(kind), "unknown kind")
	}
}

func (r *Resolver) fromPR(ctx context.Context, number uint64) (Resolution, error) {
	if r.cfg.InfraRepo.Name == "" {
		return Resolution{}, &models.ValidationError{Field: "pr", Value: strconv.FormatUint(number, 10), Reason: "no infra repo configured"}
	}
	pr, err := r.prs.GetPR(ctx, r.cfg.InfraRepo.Name, number)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve PR #%d: %w", number, err)
	}
	rest, ok := strings.CutPrefix(pr.HeadBranch, "preview/")
	if !ok {
		return Resolution{}, invalid(KindPR, strconv.FormatUint(number, 10), "head branch "+pr.HeadBranch+" is not a preview branch")
	}
	res, err := parse(rest)
	res.PRNumber = number
	return res, err
}

// notInfraPreview matches fromPR failures meaning the number is not an infra
// preview PR, as opposed to the PR service failing
func notInfraPreview(err error) bool {
	var verr *models.ValidationError
	return errors.Is(err, github.ErrPRNotFound) || errors.As(err, &verr)
}

// fromAnyPR tries the infra repo first, then treats number as an
// application PR and searches its head branch for preview tags
func (r *Resolver) fromAnyPR(ctx context.Context, number uint64) (Resolution, error) {
	res, err := r.fromPR(ctx, number)
	if err == nil || r.cfg.AppRepo.Name == "" || !notInfraPreview(err) {
		return res, err
	}
	r.logger.Debug("not an infra preview PR, trying the application repo", "pr", number, "repo", r.cfg.AppRepo.Name)

	pr, err := r.prs.GetPR(ctx, r.cfg.AppRepo.Name, number)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve PR #%d: %w", number, err)
	}
	return r.taggedPreview(ctx, pr.HeadBranch)
}

// fromBranch requires a PR for branch in the application repo, then
// searches the branch for preview tags
func (r *Resolver) fromBranch(ctx context.Context, branch string) (Resolution, error) {
	if r.cfg.AppRepo.Name == "" {
		return Resolution{}, invalid(KindGitBranch, branch, "no application repo configured")
	}
	prs, err := r.prs.ListPRs(ctx, r.cfg.AppRepo.Name, branch, github.StateAll)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	found := false
	for _, pr := range prs {
		if pr.HeadBranch == branch {
			found = true
			break
		}
	}
	if !found {
		return Resolution{}, fmt.Errorf("%s: no PR with head %s: %w", r.cfg.AppRepo.Name, branch, github.ErrPRNotFound)
	}
	return r.taggedPreview(ctx, branch)
}

// taggedPreview finds the preview whose tag is contained in the remote
// branch of the application repo. Previews that still have an infra branch
// win; otherwise the newest contained tag does.
func (r *Resolver) taggedPreview(ctx context.Context, branch string) (Resolution, error) {
	if r.refs == nil {
		return Resolution{}, errors.New("tag lookup unavailable")
	}
	repo := r.cfg.AppRepo.Path
	ref := r.cfg.Remote + "/" + branch

	if r.cfg.InfraRepo.Path != "" {
		active, err := r.refs.RemotePreviewBranches(r.cfg.InfraRepo.Path)
		if err != nil {
			return Resolution{}, fmt.Errorf("list preview branches: %w", err)
		}
		for _, id := range active {
			ok, err := r.refs.IsAncestor(repo, git.PreviewTagPrefix+id, ref)
			if err != nil {
				return Resolution{}, err
			}
			if ok {
				r.logger.Debug("branch carries an active preview", "branch", branch, "preview", id)
				return parse(id)
			}
		}
	}

	tags, err := r.refs.PreviewTags(repo)
	if err != nil {
		return Resolution{}, fmt.Errorf("list preview tags: %w", err)
	}
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		ok, err := r.refs.IsAncestor(repo, tag, ref)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return parse(strings.TrimPrefix(tag, git.PreviewTagPrefix))
		}
	}
	return Resolution{}, fmt.Errorf("branch %s of %s: %w", branch, r.cfg.AppRepo.Name, ErrPreviewNotFound)
}

// fromNamespace reads the infra PR number from preview namespaces, and asks
// the controller which application deploys into any other namespace
func (r *Resolver) fromNamespace(ctx context.Context, namespace string) (Resolution, error) {
	if r.cfg.NamespacePrefix != "" {
		if n, ok := strings.CutPrefix(namespace, r.cfg.NamespacePrefix); ok {
			if number, err := strconv.ParseUint(n, 10, 64); err == nil && number > 0 {
				return r.prOrNumber(ctx, number)
			}
		}
	}

	if r.namespaces == nil {
		return Resolution{}, errors.New("namespace lookup unavailable")
	}
	app, err := r.namespaces.AppForNamespace(ctx, namespace)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve namespace %s: %w", namespace, err)
	}
	if app == "" {
		r.logger.Debug("no application deploys into namespace, using its name", "namespace", namespace)
		return parse(namespace)
	}

	if n, ok := strings.CutPrefix(app, "preview-pr-"); ok {
		if number, err := strconv.ParseUint(n, 10, 64); err == nil && number > 0 {
			return r.prOrNumber(ctx, number)
		}
	}
	if rest, ok := strings.CutPrefix(app, "preview-"); ok {
		return parse(rest)
	}
	return parse(app)
}

// prOrNumber resolves an infra PR number; when it has no preview branch the
// number itself is the id
func (r *Resolver) prOrNumber(ctx context.Context, number uint64) (Resolution, error) {
	res, err := r.fromPR(ctx, number)
	if err == nil || !notInfraPreview(err) {
		return res, err
	}
	return Resolution{ID: models.PreviewID(strconv.FormatUint(number, 10)), PRNumber: number}, nil
}

func parse(value string) (Resolution, error) {
	id, err := models.ParsePreviewID(value)
	return Resolution{ID: id}, err
}

func invalid(kind IdentifierKind, value, reason string) error {
	return &models.ValidationError{Field: string(kind), Value: value, Reason: reason}
}
