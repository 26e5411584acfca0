package vcs

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Remote is the name of the remote clones are made from.
const Remote = "origin"

// ErrNoDefaultBranch is returned by Tip when no branch reference resolves.
var ErrNoDefaultBranch = errors.New("no default branch")

// GitOpener opens git repositories using go-git.
type GitOpener struct{}

// NewGitOpener creates a new GitOpener.
func NewGitOpener() *GitOpener {
	return &GitOpener{}
}

// PlainOpen opens an existing git repository.
func (o *GitOpener) PlainOpen(path string) (Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, err
	}
	return &gitRepository{repo: repo, path: path}, nil
}

// Clone clones a remote repository with all of its tags.
func (o *GitOpener) Clone(ctx context.Context, url, path string) (Repository, error) {
	repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:  url,
		Tags: git.AllTags,
	})
	if err != nil {
		return nil, err
	}
	return &gitRepository{repo: repo, path: path}, nil
}

// gitRepository wraps go-git Repository.
type gitRepository struct {
	repo *git.Repository
	path string
}

func (r *gitRepository) Head() (Reference, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return nil, err
	}
	return &gitReference{ref: ref}, nil
}

func (r *gitRepository) Log(opts *LogOptions) (CommitIterator, error) {
	gitOpts := &git.LogOptions{Order: git.LogOrderCommitterTime}
	if opts != nil {
		gitOpts.From = opts.From
		gitOpts.Since = opts.Since
	}
	iter, err := r.repo.Log(gitOpts)
	if err != nil {
		return nil, err
	}
	return &gitCommitIterator{iter: iter}, nil
}

func (r *gitRepository) Tip() (plumbing.Hash, error) {
	for _, name := range r.tipCandidates() {
		if ref, err := r.repo.Reference(name, true); err == nil {
			return ref.Hash(), nil
		}
	}
	return plumbing.ZeroHash, ErrNoDefaultBranch
}

// tipCandidates lists the references that may name the default branch,
// remote-tracking ones first since local branches are never pulled.
func (r *gitRepository) tipCandidates() []plumbing.ReferenceName {
	names := []plumbing.ReferenceName{plumbing.NewRemoteHEADReferenceName(Remote)}
	if cfg, err := r.repo.Config(); err == nil {
		var branches []string
		for name, b := range cfg.Branches {
			if b.Remote == Remote {
				branches = append(branches, name)
			}
		}
		sort.Strings(branches)
		for _, name := range branches {
			upstream := name
			if merge := cfg.Branches[name].Merge; merge.IsBranch() {
				upstream = merge.Short()
			}
			names = append(names,
				plumbing.NewRemoteReferenceName(Remote, upstream),
				plumbing.NewBranchReferenceName(name))
		}
	}
	if head, err := r.repo.Reference(plumbing.HEAD, false); err == nil && head.Type() == plumbing.SymbolicReference {
		names = append(names, head.Target())
	}
	return append(names,
		plumbing.NewBranchReferenceName("main"),
		plumbing.NewBranchReferenceName("master"))
}

func (r *gitRepository) Fetch(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: Remote,
		RefSpecs: []config.RefSpec{
			config.RefSpec("+refs/heads/*:refs/remotes/" + Remote + "/*"),
			"+refs/tags/*:refs/tags/*",
		},
		Tags:  git.AllTags,
		Force: true,
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) || errors.Is(err, git.ErrRemoteNotFound) {
		return nil
	}
	return err
}

func (r *gitRepository) CommitObject(hash plumbing.Hash) (Commit, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, err
	}
	return &gitCommit{commit: commit}, nil
}

func (r *gitRepository) Tags() ([]Tag, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		commit, err := r.tagCommit(ref.Hash())
		if err != nil {
			// Tags on trees or blobs carry no revision.
			if errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, object.ErrUnsupportedObject) {
				return nil
			}
			return err
		}
		tags = append(tags, Tag{Name: ref.Name().Short(), Commit: &gitCommit{commit: commit}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// tagCommit peels annotated tags down to their commit.
func (r *gitRepository) tagCommit(hash plumbing.Hash) (*object.Commit, error) {
	tag, err := r.repo.TagObject(hash)
	switch {
	case err == nil:
		return tag.Commit()
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return r.repo.CommitObject(hash)
	default:
		return nil, err
	}
}

func (r *gitRepository) RepoPath() string {
	return r.path
}

// gitReference wraps go-git Reference.
type gitReference struct {
	ref *plumbing.Reference
}

func (r *gitReference) Hash() plumbing.Hash {
	return r.ref.Hash()
}

// gitCommitIterator wraps go-git CommitIter.
type gitCommitIterator struct {
	iter object.CommitIter
}

func (i *gitCommitIterator) ForEach(fn func(Commit) error) error {
	return i.iter.ForEach(func(c *object.Commit) error {
		return fn(&gitCommit{commit: c})
	})
}

func (i *gitCommitIterator) Close() {
	i.iter.Close()
}

// gitCommit wraps go-git Commit.
type gitCommit struct {
	commit *object.Commit
}

func (c *gitCommit) Hash() plumbing.Hash {
	return c.commit.Hash
}

func (c *gitCommit) NumParents() int {
	return c.commit.NumParents()
}

func (c *gitCommit) Tree() (Tree, error) {
	tree, err := c.commit.Tree()
	if err != nil {
		return nil, err
	}
	return &gitTree{tree: tree}, nil
}

func (c *gitCommit) Author() object.Signature {
	return c.commit.Author
}

func (c *gitCommit) Committer() object.Signature {
	return c.commit.Committer
}

func (c *gitCommit) Message() string {
	return c.commit.Message
}

// gitTree wraps go-git Tree.
type gitTree struct {
	tree *object.Tree
}

func (t *gitTree) Entries() ([]TreeEntry, error) {
	walker := object.NewTreeWalker(t.tree, true, nil)
	defer walker.Close()

	var entries []TreeEntry
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !entry.Mode.IsFile() {
			continue
		}
		var size int64
		if f, err := t.tree.TreeEntryFile(&entry); err == nil {
			size = f.Size
		}
		entries = append(entries, TreeEntry{Path: name, Size: size})
	}
	return entries, nil
}

// Default opener singleton
var defaultOpener Opener = NewGitOpener()

// DefaultOpener returns the default git opener.
func DefaultOpener() Opener {
	return defaultOpener
}

// SetDefaultOpener sets the default git opener (useful for testing).
func SetDefaultOpener(opener Opener) {
	defaultOpener = opener
}
