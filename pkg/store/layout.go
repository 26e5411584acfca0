// Package store lays out and persists every artefact of a mining run under one data root.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/panbanda/smelltrend/pkg/models"
)

// Layout resolves artefact paths under a data root.
//
//	revisions/<name>.json       revision list
//	issues/<name>/<hash>.json   raw issue report per processed revision
//	events/<name>.csv           canonical events
//	files/<name>.csv            valid-file listing
//	smells.csv                  pivoted smell matrix
//	deltas/<name>_files.csv     per-file deltas
//	deltas/<name>_app.csv       per-app deltas
//	stats/                      hosting metadata cache
type Layout struct {
	Root string
}

// New returns the layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) RevisionsDir() string { return filepath.Join(l.Root, "revisions") }
func (l Layout) IssuesRoot() string   { return filepath.Join(l.Root, "issues") }
func (l Layout) EventsDir() string    { return filepath.Join(l.Root, "events") }
func (l Layout) FilesDir() string     { return filepath.Join(l.Root, "files") }
func (l Layout) DeltasDir() string    { return filepath.Join(l.Root, "deltas") }
func (l Layout) StatsDir() string     { return filepath.Join(l.Root, "stats") }
func (l Layout) SmellsFile() string   { return filepath.Join(l.Root, "smells.csv") }

// RevisionsFile is the cached revision list of a project.
func (l Layout) RevisionsFile(project string) string {
	return filepath.Join(l.RevisionsDir(), project+".json")
}

// IssuesDir holds one report per processed revision of a project.
func (l Layout) IssuesDir(project string) string {
	return filepath.Join(l.IssuesRoot(), project)
}

// ReportFile is the raw report of one revision.
func (l Layout) ReportFile(project, hash string) string {
	return filepath.Join(l.IssuesDir(project), hash+".json")
}

func (l Layout) EventsFile(project string) string {
	return filepath.Join(l.EventsDir(), project+".csv")
}

func (l Layout) FilesFile(project string) string {
	return filepath.Join(l.FilesDir(), project+".csv")
}

// DeltasFile is the delta table of a project at the given scale.
func (l Layout) DeltasFile(project string, scale models.DeltaScale) string {
	suffix := "app"
	if scale == models.ScaleFile {
		suffix = "files"
	}
	return filepath.Join(l.DeltasDir(), fmt.Sprintf("%s_%s.csv", project, suffix))
}

// EnsureDirs creates the top-level directories of the layout.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{
		l.RevisionsDir(),
		l.IssuesRoot(),
		l.EventsDir(),
		l.FilesDir(),
		l.DeltasDir(),
		l.StatsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
