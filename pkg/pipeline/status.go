package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/revision"
	"github.com/panbanda/smelltrend/pkg/store"
	"github.com/panbanda/smelltrend/pkg/tracker"
)

// ProjectStatus is the persisted progress of one project.
type ProjectStatus struct {
	Project     string          `json:"project"`
	Language    models.Language `json:"language"`
	Enumerated  bool            `json:"enumerated"`
	Revisions   int             `json:"revisions"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	tracker.Progress
}

// Status reads each project's cached revision list and report directory. It
// never touches the network or the clones.
func Status(layout store.Layout, projects []models.Project, window int) ([]ProjectStatus, error) {
	out := make([]ProjectStatus, 0, len(projects))
	for _, p := range projects {
		key := p.Key()
		st := ProjectStatus{Project: key, Language: p.Language}

		revs, err := store.ReadRevisions(layout.RevisionsFile(key))
		switch {
		case err == nil:
			st.Enumerated = true
			st.Revisions = len(revs)
			st.Fingerprint = revision.Fingerprint(revs)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		done, err := tracker.Processed(layout.IssuesDir(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		st.Progress = tracker.Summarize(revision.RecentWindow(revs, window), done)
		out = append(out, st)
	}
	return out, nil
}
