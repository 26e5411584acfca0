package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// WriteFile writes content to a file in the real filesystem.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}
}

// Step is one commit of a fixture history. A file mapped to "" is deleted.
type Step struct {
	Files map[string]string
	Tag   string
}

// History is a git repository built by GitHistory.
type History struct {
	Path   string
	Hashes []string // oldest first
	Dates  []time.Time
}

// HistoryStart is the commit date of the first step; each later step is one day after.
var HistoryStart = time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)

// GitHistory creates a repository under dir with one commit per step.
// Commits are authored by dev@example.com one day apart starting at HistoryStart.
// Steps with a Tag get a lightweight tag.
func GitHistory(t *testing.T, dir string, steps []Step) History {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit(%s) error: %v", dir, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	h := History{Path: dir}
	for i, step := range steps {
		for name, content := range step.Files {
			full := filepath.Join(dir, filepath.FromSlash(name))
			if content == "" {
				if _, err := w.Remove(name); err != nil {
					t.Fatalf("Remove(%s) error: %v", name, err)
				}
				continue
			}
			WriteFile(t, full, content)
			if _, err := w.Add(name); err != nil {
				t.Fatalf("Add(%s) error: %v", name, err)
			}
		}
		when := HistoryStart.AddDate(0, 0, i)
		sig := &object.Signature{Name: "Dev", Email: "dev@example.com", When: when}
		hash, err := w.Commit("step", &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
		if err != nil {
			t.Fatalf("Commit step %d error: %v", i, err)
		}
		if step.Tag != "" {
			if _, err := repo.CreateTag(step.Tag, hash, nil); err != nil {
				t.Fatalf("CreateTag(%s) error: %v", step.Tag, err)
			}
		}
		h.Hashes = append(h.Hashes, hash.String())
		h.Dates = append(h.Dates, when)
	}
	return h
}

// Commit adds one commit with files on the current branch of the repository at dir.
func Commit(t *testing.T, dir string, files map[string]string, when time.Time) string {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen(%s) error: %v", dir, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), content)
		if _, err := w.Add(name); err != nil {
			t.Fatalf("Add(%s) error: %v", name, err)
		}
	}
	sig := &object.Signature{Name: "Dev", Email: "dev@example.com", When: when}
	hash, err := w.Commit("step", &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	return hash.String()
}

// Rewind hard-resets the current branch of the repository at dir to hash.
func Rewind(t *testing.T, dir, hash string) {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen(%s) error: %v", dir, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Reset(&git.ResetOptions{Commit: plumbing.NewHash(hash), Mode: git.HardReset}); err != nil {
		t.Fatalf("Reset(%s) error: %v", hash, err)
	}
}
