// Package delta classifies revision-to-revision changes of total smell counts
// per file and per project.
package delta

import (
	"sort"

	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/smelltable"
)

// Options tunes file-scale deltas.
type Options struct {
	// SmellyOnly emits records only for files with at least one smell
	// somewhere in the window.
	SmellyOnly bool
}

// Classify counts steady, increased and decreased consecutive transitions.
func Classify(counts []int) (steady, increased, decreased int) {
	for i := 1; i < len(counts); i++ {
		switch d := counts[i] - counts[i-1]; {
		case d == 0:
			steady++
		case d > 0:
			increased++
		default:
			decreased++
		}
	}
	return steady, increased, decreased
}

func record(project, file string, counts []int) models.DeltaRecord {
	s, inc, dec := Classify(counts)
	return models.DeltaRecord{Project: project, File: file, Steady: s, Increased: inc, Decreased: dec}
}

// FileDeltas returns one record per file listed in any window revision. Each
// file's sequence only includes the revisions where it is listed, so a file
// present in fewer than two revisions has no transitions.
func FileDeltas(project string, window []models.Revision, table *smelltable.Table, files []models.FileKey, opts Options) []models.DeltaRecord {
	inWindow := make(map[string]struct{}, len(window))
	for _, r := range window {
		inWindow[r.Hash] = struct{}{}
	}

	present := map[string]map[string]struct{}{} // file -> revisions
	for _, k := range files {
		if k.Project != project {
			continue
		}
		if _, ok := inWindow[k.Revision]; !ok {
			continue
		}
		revs, ok := present[k.File]
		if !ok {
			revs = map[string]struct{}{}
			present[k.File] = revs
		}
		revs[k.Revision] = struct{}{}
	}

	names := make([]string, 0, len(present))
	for f := range present {
		names = append(names, f)
	}
	sort.Strings(names)

	records := make([]models.DeltaRecord, 0, len(names))
	for _, file := range names {
		var counts []int
		sum := 0
		for _, rev := range window {
			if _, ok := present[file][rev.Hash]; !ok {
				continue
			}
			n := 0
			if row, ok := table.Row(models.FileKey{Project: project, Revision: rev.Hash, File: file}); ok {
				n = row.Total()
			}
			counts = append(counts, n)
			sum += n
		}
		if opts.SmellyOnly && sum == 0 {
			continue
		}
		records = append(records, record(project, file, counts))
	}
	return records
}

// AppDeltas classifies the project's total smell count across the window.
func AppDeltas(project string, window []models.Revision, table *smelltable.Table) models.DeltaRecord {
	counts := make([]int, len(window))
	for i, rev := range window {
		counts[i] = table.RevisionTotal(project, rev.Hash)
	}
	return record(project, "", counts)
}

// Complete keeps the records spanning every boundary of a window of size window.
func Complete(records []models.DeltaRecord, window int) []models.DeltaRecord {
	var out []models.DeltaRecord
	for _, r := range records {
		if r.Complete(window) {
			out = append(out, r)
		}
	}
	return out
}
