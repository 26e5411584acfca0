// Package smelltable merges canonical events across projects and pivots them
// into a (project, revision, file) by rule count matrix.
package smelltable

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/store"
)

// MissingDataError reports a project with no persisted events.
type MissingDataError struct {
	Project string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing smell events for project %q", e.Project)
}

// Loader reads the persisted events of one project.
type Loader func(project models.Project) ([]models.CanonicalEvent, error)

// StoreLoader reads events from the per-project CSV files of layout.
func StoreLoader(layout store.Layout) Loader {
	return func(p models.Project) ([]models.CanonicalEvent, error) {
		return store.ReadEvents(layout.EventsFile(p.Name))
	}
}

// Merge concatenates the events of every project, in project order.
func Merge(projects []models.Project, load Loader) ([]models.CanonicalEvent, error) {
	var all []models.CanonicalEvent
	for _, p := range projects {
		events, err := load(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingDataError{Project: p.Name}
		}
		if err != nil {
			return nil, fmt.Errorf("load events for %s: %w", p.Name, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

// RevisionOrder maps project name to revision hash to chronological position.
type RevisionOrder map[string]map[string]int

// Add records the positions of a project's revisions.
func (o RevisionOrder) Add(project string, revs []models.Revision) {
	m := make(map[string]int, len(revs))
	for i, r := range revs {
		m[r.Hash] = i
	}
	o[project] = m
}

func (o RevisionOrder) position(project, hash string) int {
	if pos, ok := o[project][hash]; ok {
		return pos
	}
	return -1
}

// Table is the pivoted smell matrix. Every row corresponds to exactly one
// listed (project, revision, file) key.
type Table struct {
	Rules   []string
	Rows    []models.SmellRow
	Orphans int // events whose key was not in the listing

	index map[models.FileKey]int
}

// NewTable wraps rows that are already pivoted, e.g. read back from disk.
func NewTable(rules []string, rows []models.SmellRow) *Table {
	t := &Table{Rules: rules, Rows: rows}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[models.FileKey]int, len(t.Rows))
	for i, r := range t.Rows {
		t.index[r.Key()] = i
	}
}

// Pivot counts events per listed file key and rule. The key space is exactly
// files; events outside it are counted in Orphans. Rules are the sorted union
// of observed rules and rows are ordered by project, revision position, file.
func Pivot(events []models.CanonicalEvent, files []models.FileKey, order RevisionOrder) *Table {
	t := &Table{index: make(map[models.FileKey]int, len(files))}
	for _, k := range files {
		if _, ok := t.index[k]; ok {
			continue
		}
		t.index[k] = len(t.Rows)
		t.Rows = append(t.Rows, models.SmellRow{
			Project:  k.Project,
			Revision: k.Revision,
			File:     k.File,
			Counts:   map[string]int{},
		})
	}

	seen := map[string]struct{}{}
	for _, e := range events {
		i, ok := t.index[e.Key()]
		if !ok {
			t.Orphans++
			continue
		}
		t.Rows[i].Counts[e.Rule]++
		seen[e.Rule] = struct{}{}
	}

	for r := range seen {
		t.Rules = append(t.Rules, r)
	}
	models.SortRules(t.Rules)

	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		pa, pb := order.position(a.Project, a.Revision), order.position(b.Project, b.Revision)
		if pa != pb {
			return pa < pb
		}
		if a.Revision != b.Revision {
			return a.Revision < b.Revision
		}
		return a.File < b.File
	})
	t.reindex()
	return t
}

// Index returns the row position of key.
func (t *Table) Index(key models.FileKey) (int, bool) {
	i, ok := t.index[key]
	return i, ok
}

// Row returns the row for key.
func (t *Table) Row(key models.FileKey) (models.SmellRow, bool) {
	i, ok := t.index[key]
	if !ok {
		return models.SmellRow{}, false
	}
	return t.Rows[i], true
}

// Has reports whether key is part of the listing.
func (t *Table) Has(key models.FileKey) bool {
	_, ok := t.index[key]
	return ok
}

// RowsFor returns the rows of one project in table order.
func (t *Table) RowsFor(project string) []models.SmellRow {
	var out []models.SmellRow
	for _, r := range t.Rows {
		if r.Project == project {
			out = append(out, r)
		}
	}
	return out
}

// ProjectTotals sums counts per project and rule.
func (t *Table) ProjectTotals() map[string]map[string]int {
	totals := map[string]map[string]int{}
	for _, r := range t.Rows {
		m, ok := totals[r.Project]
		if !ok {
			m = map[string]int{}
			totals[r.Project] = m
		}
		for rule, c := range r.Counts {
			m[rule] += c
		}
	}
	return totals
}

// RevisionTotal returns the total smell count of one project revision.
func (t *Table) RevisionTotal(project, revision string) int {
	n := 0
	for _, r := range t.Rows {
		if r.Project == project && r.Revision == revision {
			n += r.Total()
		}
	}
	return n
}
