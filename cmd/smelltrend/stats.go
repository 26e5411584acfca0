package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/aggregate"
	"github.com/panbanda/smelltrend/pkg/hosting"
	"github.com/panbanda/smelltrend/pkg/models"
)

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Fetch and cache repository metadata from GitHub",
		ArgsUsage: "[project...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Ignore cached metadata and fetch again",
			},
			&cli.BoolFlag{
				Name:  "clear-cache",
				Usage: "Drop every cached entry before fetching",
			},
		},
		Action: runStats,
	}
}

func runStats(c *cli.Context) error {
	r, err := setup(c)
	if err != nil {
		return err
	}
	projects, err := r.cfg.SelectProjects(c.Args().Slice())
	if err != nil {
		return err
	}

	client, err := hosting.NewClientFromConfig(r.cfg, r.layout.StatsDir(), hosting.WithLogger(r.logger))
	if err != nil {
		return err
	}

	if c.Bool("clear-cache") {
		if err := client.ClearCache(); err != nil {
			return fmt.Errorf("clear stats cache: %w", err)
		}
		r.logger.Info("cleared stats cache", "dir", r.layout.StatsDir())
	}

	all := make([]*hosting.RepoStats, 0, len(projects))
	for _, p := range projects {
		var st *hosting.RepoStats
		if c.Bool("refresh") {
			st, err = client.Refresh(c.Context, p)
		} else {
			st, err = client.Stats(c.Context, p)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", p.Slug(), err)
		}
		all = append(all, st)
	}
	if st, err := client.CacheStats(); err == nil && st != nil {
		r.logger.Info("stats cache",
			"entries", st.Entries,
			"size", humanize.Bytes(uint64(st.TotalSize)),
			"oldest", st.OldestAge.Round(time.Second))
	}

	report := &output.Report{Title: "Repository statistics"}
	for _, lang := range models.Languages {
		if len(models.FilterByLanguage(projects, lang)) == 0 {
			continue
		}
		report.Sections = append(report.Sections, aggregate.RepoStatsTable(lang, all))
	}
	return r.emit(c, report)
}
