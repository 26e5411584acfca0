// Package vcs provides version control system abstractions.
package vcs

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repository provides access to git repository operations.
type Repository interface {
	// Head returns a reference to the HEAD commit.
	Head() (Reference, error)
	// Log returns a commit iterator, newest first.
	Log(opts *LogOptions) (CommitIterator, error)
	// Tip returns the commit at the tip of the default branch, wherever
	// HEAD currently points.
	Tip() (plumbing.Hash, error)
	// Fetch updates remote-tracking branches and tags from origin,
	// following rewritten history. Repositories without origin are left alone.
	Fetch(ctx context.Context) error
	// CommitObject returns the commit with the given hash.
	CommitObject(hash plumbing.Hash) (Commit, error)
	// Tags returns every tag that resolves to a commit.
	Tags() ([]Tag, error)
	// RepoPath returns the root path of the repository.
	RepoPath() string
}

// Reference represents a git reference (branch, tag, HEAD).
type Reference interface {
	Hash() plumbing.Hash
}

// LogOptions configures the commit log query.
type LogOptions struct {
	// From is the commit to walk back from. Zero means HEAD.
	From  plumbing.Hash
	Since *time.Time
}

// CommitIterator iterates over commits.
type CommitIterator interface {
	ForEach(fn func(Commit) error) error
	Close()
}

// Commit represents a git commit.
type Commit interface {
	// Hash returns the commit hash.
	Hash() plumbing.Hash
	// NumParents returns the number of parent commits.
	NumParents() int
	// Tree returns the tree object for this commit.
	Tree() (Tree, error)
	// Author returns commit author information.
	Author() object.Signature
	// Committer returns committer information.
	Committer() object.Signature
	// Message returns the commit message.
	Message() string
}

// TreeEntry represents a file in a git tree.
type TreeEntry struct {
	Path string
	Size int64
}

// Tree represents a git tree object.
type Tree interface {
	// Entries returns all files in the tree (recursively), with forward-slash paths.
	Entries() ([]TreeEntry, error)
}

// Tag is a tag name resolved to the commit it points at.
type Tag struct {
	Name   string
	Commit Commit
}

// Opener opens and clones git repositories.
type Opener interface {
	// PlainOpen opens an existing git repository.
	PlainOpen(path string) (Repository, error)
	// Clone clones url into path, including tags.
	Clone(ctx context.Context, url, path string) (Repository, error)
}
