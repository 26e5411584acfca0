package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrUnknownRevision is returned when a hash does not resolve to a commit.
var ErrUnknownRevision = errors.New("unknown revision")

// ForceCheckout resets the working tree to hash, detaching HEAD, then removes
// every untracked and ignored file so nothing from a previous revision survives.
func ForceCheckout(ctx context.Context, repoPath, hash string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return err
	}

	h := plumbing.NewHash(hash)
	if h.IsZero() || h.String() != strings.ToLower(hash) {
		return fmt.Errorf("%w: %q", ErrUnknownRevision, hash)
	}
	if _, err := repo.CommitObject(h); err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownRevision, hash)
		}
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: h, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", hash, err)
	}

	return Clean(ctx, repoPath)
}

// Clean runs `git clean -xdf` in the repository. When no git binary is
// available it falls back to go-git, which leaves ignored files in place.
func Clean(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, "git", "clean", "-xdf")
	cmd.Dir = repoPath
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("git clean: %w: %s", err, strings.TrimSpace(string(out)))
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Clean(&git.CleanOptions{Dir: true})
}

// GetCurrentRef returns the current branch name or commit SHA (for detached HEAD).
func GetCurrentRef(repoPath string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if err != nil {
		return "", err
	}

	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}

	return head.Hash().String(), nil
}

// HasCommit reports whether hash resolves to a commit in the repository's object store.
func HasCommit(repo Repository, hash string) bool {
	_, err := repo.CommitObject(plumbing.NewHash(hash))
	return err == nil
}
