// Package revision enumerates, caches and checks out the historical revisions of a project.
package revision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/panbanda/smelltrend/internal/vcs"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/store"
)

// ErrStaleRevisions is returned when a cached revision list names commits the
// local clone no longer has, typically after upstream history was rewritten.
var ErrStaleRevisions = errors.New("cached revision list is stale")

// ErrUnknownRevision is returned when a revision cannot be checked out.
var ErrUnknownRevision = vcs.ErrUnknownRevision

// ExclusionGlobs mirror the scanner's test exclusions.
var ExclusionGlobs = []string{"**/test/**", "**/tests/**", "**/*test*"}

// Source enumerates and checks out revisions of one project clone.
type Source struct {
	project models.Project
	repo    vcs.Repository
	layout  store.Layout
	mode    models.RevisionMode
	refresh bool
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithMode selects commits or releases.
func WithMode(mode models.RevisionMode) Option {
	return func(s *Source) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithRefresh discards the cached revision list and re-enumerates history.
func WithRefresh(refresh bool) Option {
	return func(s *Source) {
		s.refresh = refresh
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an already opened repository.
func New(repo vcs.Repository, project models.Project, layout store.Layout, opts ...Option) *Source {
	s := &Source{
		project: project,
		repo:    repo,
		layout:  layout,
		mode:    models.RevisionCommits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the project's clone under the configured repos directory,
// cloning it first when absent. Clone failures are not retried.
func Open(ctx context.Context, cfg *config.Config, opener vcs.Opener, project models.Project, opts ...Option) (*Source, error) {
	if opener == nil {
		opener = vcs.DefaultOpener()
	}
	dir := filepath.Join(cfg.ReposDir(), project.Key())

	var repo vcs.Repository
	var err error
	if _, statErr := os.Stat(dir); statErr == nil {
		repo, err = opener.PlainOpen(dir)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", dir, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return nil, err
		}
		repo, err = opener.Clone(ctx, project.CloneURL(), dir)
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", project.CloneURL(), err)
		}
	}

	all := append([]Option{WithMode(models.RevisionMode(cfg.Revisions.Mode))}, opts...)
	s := New(repo, project, store.New(cfg.Data.Root), all...)
	if ref, err := vcs.GetCurrentRef(dir); err == nil {
		s.logger.Debug("opened clone", "dir", dir, "ref", ref)
	}
	return s, nil
}

// Project returns the project this source belongs to.
func (s *Source) Project() models.Project { return s.project }

// Dir returns the working tree of the clone.
func (s *Source) Dir() string { return s.repo.RepoPath() }

// Enumerate returns every revision oldest-first. The first call persists the
// list; later calls read it back and verify each cached hash still resolves.
// With WithRefresh the clone fetches from origin before history is walked again.
func (s *Source) Enumerate(ctx context.Context) ([]models.Revision, error) {
	path := s.layout.RevisionsFile(s.project.Key())

	if !s.refresh {
		revs, err := store.ReadRevisions(path)
		switch {
		case err == nil:
			if err := s.verify(revs); err != nil {
				return nil, err
			}
			s.logger.Info("loaded revisions", "count", len(revs), "fingerprint", Fingerprint(revs))
			return revs, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read revision cache: %w", err)
		}
	}

	if s.refresh {
		s.logger.Info("fetching upstream history")
		if err := s.repo.Fetch(ctx); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}

	var revs []models.Revision
	var err error
	switch s.mode {
	case models.RevisionReleases:
		revs, err = s.releases(ctx)
	default:
		revs, err = s.commits(ctx)
	}
	if err != nil {
		return nil, err
	}
	models.Renumber(revs)

	if err := store.WriteRevisions(path, revs); err != nil {
		return nil, fmt.Errorf("write revision cache: %w", err)
	}
	s.logger.Info("enumerated revisions", "mode", s.mode, "count", len(revs), "fingerprint", Fingerprint(revs))
	return revs, nil
}

func (s *Source) verify(revs []models.Revision) error {
	var missing []string
	for _, r := range revs {
		if !vcs.HasCommit(s.repo, r.Hash) {
			missing = append(missing, r.ShortHash())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %d of %d cached hashes not found (first %s); re-enumerate with --refresh-revisions",
		ErrStaleRevisions, s.project.Key(), len(missing), len(revs), missing[0])
}

// commits walks the default branch from its tip, so a clone left at an old
// checkout still yields the whole history.
func (s *Source) commits(ctx context.Context) ([]models.Revision, error) {
	tip, err := s.repo.Tip()
	if err != nil {
		return nil, fmt.Errorf("default branch: %w", err)
	}
	iter, err := s.repo.Log(&vcs.LogOptions{From: tip})
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	var revs []models.Revision
	err = iter.ForEach(func(c vcs.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		revs = append(revs, models.Revision{
			Hash:   c.Hash().String(),
			Date:   c.Committer().When,
			Author: c.Author().Email,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Log is newest-first.
	for i, j := 0, len(revs)-1; i < j; i, j = i+1, j-1 {
		revs[i], revs[j] = revs[j], revs[i]
	}
	return revs, nil
}

func (s *Source) releases(ctx context.Context) ([]models.Revision, error) {
	tags, err := s.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	revs := make([]models.Revision, 0, len(tags))
	for _, t := range tags {
		revs = append(revs, models.Revision{
			Hash:   t.Commit.Hash().String(),
			Name:   t.Name,
			Date:   t.Commit.Committer().When,
			Author: t.Commit.Author().Email,
		})
	}
	sort.SliceStable(revs, func(i, j int) bool {
		if !revs[i].Date.Equal(revs[j].Date) {
			return revs[i].Date.Before(revs[j].Date)
		}
		return revs[i].Name < revs[j].Name
	})

	// Several tags on one commit describe a single revision.
	seen := make(map[string]bool, len(revs))
	out := revs[:0]
	for _, r := range revs {
		if seen[r.Hash] {
			continue
		}
		seen[r.Hash] = true
		out = append(out, r)
	}
	return out, nil
}

// Checkout forces the working tree to rev and returns it.
func (s *Source) Checkout(ctx context.Context, rev models.Revision) (models.Revision, error) {
	if err := vcs.ForceCheckout(ctx, s.repo.RepoPath(), rev.Hash); err != nil {
		return models.Revision{}, fmt.Errorf("checkout %s: %w", rev.ShortHash(), err)
	}
	return rev, nil
}

// ValidFiles lists the production source files of the project's language at rev,
// read from the git tree without touching the working copy.
func (s *Source) ValidFiles(rev models.Revision) ([]string, error) {
	commit, err := s.repo.CommitObject(plumbing.NewHash(rev.Hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, rev.Hash)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	entries, err := tree.Entries()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if IsValidFile(s.project.Language, e.Path) {
			files = append(files, e.Path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// IsValidFile reports whether path is a non-test source file of lang.
func IsValidFile(lang models.Language, path string) bool {
	path = strings.ReplaceAll(path, "\\", "/")
	if !lang.HasExtension(path) || strings.Contains(path, "test") {
		return false
	}
	for _, glob := range ExclusionGlobs {
		if ok, _ := doublestar.Match(glob, path); ok {
			return false
		}
	}
	return true
}

// RecentWindow returns the last n revisions, or all of them when fewer exist.
func RecentWindow(revs []models.Revision, n int) []models.Revision {
	if n <= 0 || n >= len(revs) {
		return revs
	}
	return revs[len(revs)-n:]
}

// Fingerprint hashes the ordered hash list so cache drift is visible at a glance.
func Fingerprint(revs []models.Revision) string {
	d := xxhash.New()
	for _, r := range revs {
		_, _ = d.WriteString(r.Hash)
		_, _ = d.WriteString("\n")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
