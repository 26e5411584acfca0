package models

// DeltaScale selects per-file or per-project delta aggregation.
type DeltaScale string

const (
	ScaleApp  DeltaScale = "app"
	ScaleFile DeltaScale = "file"
)

// DeltaRecord counts transitions of total smell count between consecutive revisions.
// For app-scale records File is empty.
type DeltaRecord struct {
	Project   string `json:"project"`
	File      string `json:"file_name,omitempty"`
	Steady    int    `json:"steady"`
	Increased int    `json:"increased"`
	Decreased int    `json:"decreased"`
}

// Transitions returns steady+increased+decreased.
func (d DeltaRecord) Transitions() int {
	return d.Steady + d.Increased + d.Decreased
}

// Complete reports whether the record spans every boundary of a window.
func (d DeltaRecord) Complete(window int) bool {
	return window > 1 && d.Transitions() == window-1
}
