package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/normalize"
	"github.com/panbanda/smelltrend/pkg/pipeline"
)

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Rebuild events, file listings, the smell matrix and deltas",
		Description: `Normalizes every persisted report of every configured project, pivots the
events into smells.csv and computes file and application deltas. Every
configured project must have been mined.`,
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	r, err := setup(c)
	if err != nil {
		return err
	}
	if err := r.layout.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := pipeline.NewAnalyzer(r.cfg, pipeline.WithAnalyzerLogger(r.logger))
	if err != nil {
		return err
	}
	result, err := analyzer.Analyze(ctx, r.cfg.Projects)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(result.Projects))
	for _, pa := range result.Projects {
		rows = append(rows, []string{
			pa.Project,
			strconv.Itoa(pa.Revisions),
			strconv.Itoa(pa.Events),
			strconv.Itoa(pa.Dropped[normalize.ReasonTest]),
			strconv.Itoa(pa.Dropped[normalize.ReasonLanguage]),
			strconv.Itoa(pa.Dropped[normalize.ReasonRuleset] + pa.Dropped[normalize.ReasonSeverity]),
			strconv.Itoa(pa.Files),
		})
	}
	footer := []string{
		strconv.Itoa(result.Rules) + " rules",
		"",
		"",
		"",
		"",
		"",
		strconv.Itoa(result.Rows) + " rows",
	}

	f, err := r.formatter(c)
	if err != nil {
		return err
	}
	defer f.Close()
	if result.Orphans > 0 && f.Format() == output.FormatText {
		f.Warning("%d events referenced files outside the listing and were excluded", result.Orphans)
	}
	return f.Output(output.NewTable("Analysis",
		[]string{"Project", "Revisions", "Events", "Dropped test", "Dropped lang", "Dropped policy", "File revisions"},
		rows, footer, result))
}
