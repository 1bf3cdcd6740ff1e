// Package changeset decides which single change-set a gate run reviews.
package changeset

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/joescharf/reviewgate/internal/git"
	"github.com/joescharf/reviewgate/internal/models"
)

// MaxCandidates is how many open pull requests all-open-prs mode surfaces.
const MaxCandidates = 5

// fallbackBases are tried in order when no base ref is supplied.
var fallbackBases = []string{"main", "master"}

// Params carries the mode-specific inputs.
type Params struct {
	Owner    string
	Repo     string
	Number   int    // explicit-pr
	BaseRef  string // local-diff; empty means main, then master
	HeadRef  string // local-diff; empty means HEAD
	RepoPath string // local-diff
}

// Resolution is the resolved change-set plus, in all-open-prs mode, the
// candidates that were considered. Only ChangeSet is reviewed.
type Resolution struct {
	ChangeSet  models.ChangeSet
	Candidates []git.PullRequest
}

// Resolver resolves change-sets against the remote host and local git.
type Resolver struct {
	prs    git.PullRequestLister
	git    git.Client
	webURL string
	log    *zap.SugaredLogger
}

// NewResolver creates a resolver. prs may be nil when only explicit-pr and
// local-diff modes are used.
func NewResolver(prs git.PullRequestLister, gc git.Client, webURL string, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{prs: prs, git: gc, webURL: webURL, log: log}
}

// Resolve returns exactly one change-set for mode.
func (r *Resolver) Resolve(ctx context.Context, mode models.ChangeSetMode, p Params) (Resolution, error) {
	switch mode {
	case models.ModeExplicitPR:
		return r.explicit(p)
	case models.ModeLatestOpenPR:
		return r.latest(ctx, p, 1)
	case models.ModeAllOpenPRs:
		return r.latest(ctx, p, MaxCandidates)
	case models.ModeLocalDiff:
		return r.localDiff(ctx, p)
	default:
		return Resolution{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, mode)
	}
}

func (r *Resolver) explicit(p Params) (Resolution, error) {
	if p.Number <= 0 {
		return Resolution{}, fmt.Errorf("%w: explicit-pr requires a positive PR number", ErrInvalidParams)
	}
	if p.Owner == "" || p.Repo == "" {
		return Resolution{}, fmt.Errorf("%w: explicit-pr requires owner and repo", ErrInvalidParams)
	}
	cs := models.ChangeSet{
		Mode:      models.ModeExplicitPR,
		Number:    p.Number,
		SourceURL: git.PullRequestURL(r.webURL, p.Owner, p.Repo, p.Number),
	}
	return Resolution{ChangeSet: cs}, nil
}

// latest queries open PRs, orders them by recency and selects the first.
// keep bounds how many candidates are reported back.
func (r *Resolver) latest(ctx context.Context, p Params, keep int) (Resolution, error) {
	if p.Owner == "" || p.Repo == "" {
		return Resolution{}, fmt.Errorf("%w: owner and repo are required to query pull requests", ErrInvalidParams)
	}
	if r.prs == nil {
		return Resolution{}, &UpstreamQueryError{Owner: p.Owner, Repo: p.Repo, Err: fmt.Errorf("no GitHub client configured")}
	}

	prs, err := r.prs.ListOpenPullRequests(ctx, p.Owner, p.Repo)
	if err != nil {
		return Resolution{}, &UpstreamQueryError{Owner: p.Owner, Repo: p.Repo, Err: err}
	}
	if len(prs) == 0 {
		return Resolution{}, ErrNoOpenChangeSets
	}

	SortByRecency(prs)
	selected := prs[0]
	r.log.Debugw("selected pull request", "number", selected.Number, "updated_at", selected.UpdatedAt, "open", len(prs))

	mode := models.ModeLatestOpenPR
	if keep > 1 {
		mode = models.ModeAllOpenPRs
	}
	url := selected.URL
	if url == "" {
		url = git.PullRequestURL(r.webURL, p.Owner, p.Repo, selected.Number)
	}

	res := Resolution{
		ChangeSet: models.ChangeSet{
			Mode:      mode,
			Number:    selected.Number,
			BaseRef:   selected.BaseRef,
			HeadRef:   selected.HeadRef,
			SourceURL: url,
			Title:     selected.Title,
			UpdatedAt: selected.UpdatedAt,
		},
	}
	if keep > 1 {
		res.Candidates = prs[:min(keep, len(prs))]
	}
	return res, nil
}

func (r *Resolver) localDiff(ctx context.Context, p Params) (Resolution, error) {
	if r.git == nil {
		return Resolution{}, fmt.Errorf("%w: local-diff requires a git client", ErrInvalidParams)
	}
	path := p.RepoPath
	if path == "" {
		path = "."
	}

	bases := fallbackBases
	if p.BaseRef != "" {
		bases = []string{p.BaseRef}
	}

	var base string
	for _, candidate := range bases {
		ok, err := r.git.RefExists(ctx, path, candidate)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %v", ErrResolve, err)
		}
		if ok {
			base = candidate
			break
		}
		r.log.Debugw("base ref not found", "ref", candidate)
	}
	if base == "" {
		if p.BaseRef != "" {
			return Resolution{}, fmt.Errorf("%w: base ref %q not found", ErrResolve, p.BaseRef)
		}
		return Resolution{}, ErrNoBaseBranch
	}

	head := p.HeadRef
	if head == "" {
		head = "HEAD"
	}

	return Resolution{ChangeSet: models.ChangeSet{
		Mode:    models.ModeLocalDiff,
		BaseRef: base,
		HeadRef: head,
	}}, nil
}

// SortByRecency orders pull requests by UpdatedAt descending, breaking ties
// by number descending. The host's own ordering is not trusted for ties.
func SortByRecency(prs []git.PullRequest) {
	sort.SliceStable(prs, func(i, j int) bool {
		if !prs[i].UpdatedAt.Equal(prs[j].UpdatedAt) {
			return prs[i].UpdatedAt.After(prs[j].UpdatedAt)
		}
		return prs[i].Number > prs[j].Number
	})
}
