// Package tracker decides which revisions of a project still need analysis.
//
// A revision counts as processed exactly when its report file exists, so an
// interrupted run resumes where it stopped without any other bookkeeping.
package tracker

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/panbanda/smelltrend/pkg/models"
)

// Set is a set of revision hashes.
type Set map[string]struct{}

// Has reports whether hash is in the set.
func (s Set) Has(hash string) bool {
	_, ok := s[hash]
	return ok
}

// Processed lists the revisions that have a persisted *.json report in dir.
// A missing directory means nothing has been processed yet.
func Processed(dir string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, nil
		}
		return nil, err
	}

	done := make(Set, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		done[strings.TrimSuffix(name, ".json")] = struct{}{}
	}
	return done, nil
}

// Remaining returns the in-scope revisions without a report, in their original order.
func Remaining(inScope []models.Revision, processed Set) []models.Revision {
	var out []models.Revision
	for _, r := range inScope {
		if !processed.Has(r.Hash) {
			out = append(out, r)
		}
	}
	return out
}

// Progress summarizes a project's position in its revision window.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Remaining int `json:"remaining"`
}

// Summarize counts processed and remaining revisions within inScope.
// Reports for revisions outside the window are not counted.
func Summarize(inScope []models.Revision, processed Set) Progress {
	remaining := len(Remaining(inScope, processed))
	return Progress{
		Total:     len(inScope),
		Processed: len(inScope) - remaining,
		Remaining: remaining,
	}
}

// Done reports whether every revision in the window has been processed.
func (p Progress) Done() bool {
	return p.Remaining == 0
}
