package models

// CanonicalEvent is one normalized issue occurrence.
// The same (project, revision, file, rule) key may repeat; the multiplicity is the smell count.
type CanonicalEvent struct {
	Project  string   `json:"project"`
	Revision string   `json:"commit_hash"`
	File     string   `json:"file_name"`
	Rule     string   `json:"rule"`
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Tags     []string `json:"tags"`
}

// FileKey identifies one file at one revision of one project.
type FileKey struct {
	Project  string
	Revision string
	File     string
}

// Key returns the (project, revision, file) key of the event.
func (e CanonicalEvent) Key() FileKey {
	return FileKey{Project: e.Project, Revision: e.Revision, File: e.File}
}

// SmellRow is one row of the pivoted smell matrix.
type SmellRow struct {
	Project  string         `json:"project"`
	Revision string         `json:"commit_hash"`
	File     string         `json:"file_name"`
	Counts   map[string]int `json:"counts"`
}

// Key returns the (project, revision, file) key of the row.
func (r SmellRow) Key() FileKey {
	return FileKey{Project: r.Project, Revision: r.Revision, File: r.File}
}

// Count returns the number of occurrences of rule in the row.
func (r SmellRow) Count(rule string) int {
	return r.Counts[rule]
}

// Total returns the total smell count of the row.
func (r SmellRow) Total() int {
	total := 0
	for _, c := range r.Counts {
		total += c
	}
	return total
}
