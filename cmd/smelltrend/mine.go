package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/smelltrend/internal/logging"
	"github.com/panbanda/smelltrend/internal/metrics"
	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/pipeline"
	"github.com/panbanda/smelltrend/pkg/sonar"
)

func mineCmd() *cli.Command {
	return &cli.Command{
		Name:  "mine",
		Usage: "Scan the remaining revisions of each project's window",
		Description: `Clones each project when needed, enumerates its revisions and runs the
scanner on every revision of the recent window that has no report yet.
Interrupted runs resume where they stopped.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Only mine these projects (name or owner/name)",
			},
			&cli.BoolFlag{
				Name:  "refresh-revisions",
				Usage: "Re-enumerate revisions instead of reading the cached list",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve prometheus metrics on this address while mining (overrides metrics.addr)",
			},
		},
		Action: runMine,
	}
}

func runMine(c *cli.Context) error {
	r, err := setup(c)
	if err != nil {
		return err
	}
	projects, err := r.cfg.SelectProjects(c.StringSlice("project"))
	if err != nil {
		return err
	}
	if err := r.layout.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, runID := logging.WithRun(r.logger)
	m := metrics.New()
	addr := c.String("metrics-addr")
	if addr == "" {
		addr = r.cfg.Metrics.Addr
	}
	if addr != "" {
		srv, err := m.Serve(addr, logger)
		if err != nil {
			return err
		}
		defer srv.Close()
		logger.Info("serving metrics", "addr", srv.Addr())
	}

	driver, err := sonar.NewDriverFromConfig(r.cfg, sonar.WithLogger(logger), sonar.WithMetrics(m))
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithOpener(pipeline.RevisionOpener(r.cfg, nil, logger, c.Bool("refresh-revisions"))),
	}
	// Concurrent bars would interleave; with several workers the ETA is logged instead.
	if r.cfg.Workers == 1 || len(projects) == 1 {
		opts = append(opts, pipeline.WithProgress(c.App.ErrWriter))
	}

	logger.Info("mining started", "projects", len(projects), "workers", r.cfg.Workers)
	results, runErr := pipeline.NewMiner(r.cfg, driver, opts...).Run(ctx, projects)
	logger.Info("mining finished", "failed", runErr != nil)

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{
			res.Project,
			strconv.Itoa(res.Window),
			strconv.Itoa(res.Processed),
			strconv.Itoa(res.Skipped),
			strconv.Itoa(res.Remaining),
			res.Elapsed.Round(time.Second).String(),
		})
	}
	table := output.NewTable("Mining run "+runID,
		[]string{"Project", "Window", "Processed", "Skipped", "Remaining", "Elapsed"},
		rows, nil, results)
	if err := r.emit(c, table); err != nil {
		return err
	}
	return runErr
}
