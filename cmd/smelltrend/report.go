package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/aggregate"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/pipeline"
)

// Report kinds, in the order they are printed.
const (
	reportDistribution  = "distribution"
	reportAppFrequency  = "app-frequency"
	reportFileFrequency = "file-frequency"
	reportCooccurrence  = "cooccurrence"
	reportDeltas        = "deltas"
)

var reportKinds = []string{reportDistribution, reportAppFrequency, reportFileFrequency, reportCooccurrence, reportDeltas}

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Print aggregate reports from the persisted tables",
		ArgsUsage: "[" + strings.Join(reportKinds, "|") + "...]",
		Description: `Reads smells.csv and the delta tables written by analyze. Without
arguments every report is printed.`,
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	kinds := c.Args().Slice()
	if len(kinds) == 0 {
		kinds = reportKinds
	}
	for _, k := range kinds {
		if !isReportKind(k) {
			return fmt.Errorf("unknown report %q (want one of %s)", k, strings.Join(reportKinds, ", "))
		}
	}

	r, err := setup(c)
	if err != nil {
		return err
	}
	ds, err := pipeline.LoadDataset(r.cfg, r.cfg.Projects)
	if err != nil {
		return err
	}

	report := &output.Report{Title: "Smell report"}
	for _, kind := range kinds {
		sections, err := buildReport(kind, ds, r.cfg.Analysis.Epsilon)
		if err != nil {
			return err
		}
		report.Sections = append(report.Sections, sections...)
	}
	return r.emit(c, report)
}

func isReportKind(kind string) bool {
	for _, k := range reportKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func perLanguage(fn func(models.Language) aggregate.RuleValues) map[models.Language]aggregate.RuleValues {
	out := make(map[models.Language]aggregate.RuleValues, len(models.Languages))
	for _, lang := range models.Languages {
		out[lang] = fn(lang)
	}
	return out
}

func buildReport(kind string, ds *aggregate.Dataset, epsilon float64) ([]output.Renderable, error) {
	switch kind {
	case reportDistribution:
		return []output.Renderable{
			aggregate.RuleTable("Overall smell distribution", models.Languages, perLanguage(ds.OverallDistribution)),
		}, nil
	case reportAppFrequency:
		return []output.Renderable{
			aggregate.RuleTable("Applications affected per smell", models.Languages, perLanguage(ds.AppFrequency)),
		}, nil
	case reportFileFrequency:
		return []output.Renderable{
			aggregate.RuleTable("File revisions affected per smell", models.Languages, perLanguage(ds.FileFrequency)),
		}, nil
	case reportCooccurrence:
		matrices := make([]*aggregate.Matrix, len(models.Languages))
		for i, lang := range models.Languages {
			m, err := ds.Cooccurrence(lang, epsilon)
			if err != nil {
				return nil, err
			}
			matrices[i] = m
		}
		var sections []output.Renderable
		for i, m := range aggregate.Prune(matrices...) {
			title := fmt.Sprintf("Smell co-occurrence (%s)", strings.ToUpper(models.Languages[i].Short()))
			sections = append(sections, aggregate.MatrixTable(title, m))
		}
		return sections, nil
	case reportDeltas:
		var sections []output.Renderable
		for _, scale := range []models.DeltaScale{models.ScaleFile, models.ScaleApp} {
			for _, lang := range models.Languages {
				title := fmt.Sprintf("%s deltas (%s)", scaleName(scale), strings.ToUpper(lang.Short()))
				sections = append(sections, aggregate.DeltaTable(title, ds.DeltaFiveNumberSummary(lang, scale)))
			}
		}
		return sections, nil
	}
	return nil, fmt.Errorf("unknown report %q", kind)
}

func scaleName(scale models.DeltaScale) string {
	if scale == models.ScaleApp {
		return "Application"
	}
	return "File"
}
