package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RevisionDateLayout is the timestamp layout used in persisted revision lists.
const RevisionDateLayout = "2006.01.02 - 15:04:05"

// RevisionMode selects which points of history are enumerated.
type RevisionMode string

const (
	RevisionCommits  RevisionMode = "commits"
	RevisionReleases RevisionMode = "releases"
)

// Revision identifies a single point in a repository's history.
type Revision struct {
	Hash     string    `json:"hash"`
	Name     string    `json:"name,omitempty"` // tag name for releases
	Position int       `json:"-"`              // chronological index, oldest = 0
	Date     time.Time `json:"-"`
	Author   string    `json:"author"`
}

// ShortHash returns the first 7 characters of the revision hash.
func (r Revision) ShortHash() string {
	if len(r.Hash) > 7 {
		return r.Hash[:7]
	}
	return r.Hash
}

// String returns a human-readable representation of the revision.
func (r Revision) String() string {
	label := r.ShortHash()
	if r.Name != "" {
		label = fmt.Sprintf("%s [%s]", r.Name, label)
	}
	return fmt.Sprintf("%s (%s) %s", label, r.Date.Format(RevisionDateLayout), r.Author)
}

type revisionJSON struct {
	Hash   string `json:"hash"`
	Name   string `json:"name,omitempty"`
	Date   string `json:"date"`
	Author string `json:"author"`
}

// MarshalJSON encodes the date with RevisionDateLayout.
func (r Revision) MarshalJSON() ([]byte, error) {
	return json.Marshal(revisionJSON{
		Hash:   r.Hash,
		Name:   r.Name,
		Date:   r.Date.Format(RevisionDateLayout),
		Author: r.Author,
	})
}

// UnmarshalJSON decodes a revision persisted by MarshalJSON.
func (r *Revision) UnmarshalJSON(data []byte) error {
	var raw revisionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(RevisionDateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("revision %s: invalid date %q: %w", raw.Hash, raw.Date, err)
	}
	r.Hash = raw.Hash
	r.Name = raw.Name
	r.Date = date
	r.Author = raw.Author
	return nil
}

// Renumber assigns chronological positions to an oldest-first revision list.
func Renumber(revs []Revision) {
	for i := range revs {
		revs[i].Position = i
	}
}
