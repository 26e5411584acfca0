package main

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/pipeline"
)

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show processed and remaining revisions per project",
		ArgsUsage: "[project...]",
		Action:    runStatus,
	}
}

func runStatus(c *cli.Context) error {
	r, err := setup(c)
	if err != nil {
		return err
	}
	projects, err := r.cfg.SelectProjects(c.Args().Slice())
	if err != nil {
		return err
	}

	statuses, err := pipeline.Status(r.layout, projects, r.cfg.Revisions.Window)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(statuses))
	processed, remaining := 0, 0
	for _, st := range statuses {
		revisions := "-"
		if st.Enumerated {
			revisions = strconv.Itoa(st.Revisions)
		}
		rows = append(rows, []string{
			st.Project,
			st.Language.Short(),
			revisions,
			strconv.Itoa(st.Total),
			strconv.Itoa(st.Processed),
			strconv.Itoa(st.Remaining),
			dash(st.Fingerprint),
		})
		processed += st.Processed
		remaining += st.Remaining
	}
	footer := []string{"", "", "", "", strconv.Itoa(processed), strconv.Itoa(remaining), ""}

	return r.emit(c, output.NewTable("Mining status",
		[]string{"Project", "Lang", "Revisions", "Window", "Processed", "Remaining", "Fingerprint"},
		rows, footer, statuses))
}
