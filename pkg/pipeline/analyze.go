package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/smelltrend/internal/logging"
	"github.com/panbanda/smelltrend/pkg/aggregate"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/delta"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/normalize"
	"github.com/panbanda/smelltrend/pkg/revision"
	"github.com/panbanda/smelltrend/pkg/smelltable"
	"github.com/panbanda/smelltrend/pkg/store"
	"github.com/panbanda/smelltrend/pkg/tracker"
)

// Lister lists the valid source files of a revision.
type Lister interface {
	ValidFiles(rev models.Revision) ([]string, error)
}

// ListerOpener opens the lister of a project. It is only called when a
// revision's listing is not persisted yet.
type ListerOpener func(ctx context.Context, project models.Project) (Lister, error)

// ProjectAnalysis summarizes the analysis inputs of one project.
type ProjectAnalysis struct {
	Project   string            `json:"project"`
	Revisions int               `json:"revisions"`
	Events    int               `json:"events"`
	Files     int               `json:"files"`
	Dropped   normalize.Dropped `json:"dropped"`
}

// Analysis is the outcome of an analyze run.
type Analysis struct {
	Projects []ProjectAnalysis `json:"projects"`
	Rules    int               `json:"rules"`
	Rows     int               `json:"rows"`
	Orphans  int               `json:"orphans"`
}

// Analyzer rebuilds events, listings, the smell matrix and the deltas from
// the persisted reports.
type Analyzer struct {
	layout     store.Layout
	window     int
	workers    int
	normalizer *normalize.Normalizer
	deltaOpts  delta.Options
	openLister ListerOpener
	logger     *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithListerOpener replaces how file listings are computed.
func WithListerOpener(open ListerOpener) AnalyzerOption {
	return func(a *Analyzer) {
		a.openLister = open
	}
}

// WithAnalyzerLogger sets the logger.
func WithAnalyzerLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an analyzer with the configured ruleset policy.
func NewAnalyzer(cfg *config.Config, opts ...AnalyzerOption) (*Analyzer, error) {
	policy, err := normalize.PolicyFromConfig(cfg.Ruleset)
	if err != nil {
		return nil, err
	}
	a := &Analyzer{
		layout:     store.New(cfg.Data.Root),
		window:     cfg.Revisions.Window,
		workers:    max(cfg.Workers, 1),
		normalizer: normalize.New(policy),
		deltaOpts:  delta.Options{SmellyOnly: cfg.Analysis.SmellyOnly},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.openLister == nil {
		a.openLister = func(ctx context.Context, p models.Project) (Lister, error) {
			src, err := revision.Open(ctx, cfg, nil, p, revision.WithLogger(logging.ForProject(a.logger, p.Key())))
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	}
	return a, nil
}

type projectInput struct {
	summary ProjectAnalysis
	window  []models.Revision // processed revisions of the window, oldest first
	files   []models.FileKey
}

// Analyze recomputes every derived table for projects. A project without
// processed revisions fails the run with *smelltable.MissingDataError.
func (a *Analyzer) Analyze(ctx context.Context, projects []models.Project) (*Analysis, error) {
	inputs := make([]projectInput, len(projects))

	p := pool.New().WithMaxGoroutines(a.workers).WithContext(ctx)
	for i, project := range projects {
		p.Go(func(ctx context.Context) error {
			in, err := a.prepare(ctx, project)
			if err != nil {
				return fmt.Errorf("%s: %w", project.Key(), err)
			}
			inputs[i] = in
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	events, err := smelltable.Merge(projects, smelltable.StoreLoader(a.layout))
	if err != nil {
		return nil, err
	}

	order := smelltable.RevisionOrder{}
	var files []models.FileKey
	for i, project := range projects {
		order.Add(project.Key(), inputs[i].window)
		files = append(files, inputs[i].files...)
	}

	table := smelltable.Pivot(events, files, order)
	if table.Orphans > 0 {
		a.logger.Warn("events outside the file listing were excluded", "orphans", table.Orphans)
	}
	if err := store.WriteSmells(a.layout.SmellsFile(), table.Rules, table.Rows); err != nil {
		return nil, fmt.Errorf("write smell table: %w", err)
	}

	result := &Analysis{Rules: len(table.Rules), Rows: len(table.Rows), Orphans: table.Orphans}
	for i, project := range projects {
		key := project.Key()
		in := inputs[i]

		fileDeltas := delta.FileDeltas(key, in.window, table, in.files, a.deltaOpts)
		if err := store.WriteDeltas(a.layout.DeltasFile(key, models.ScaleFile), models.ScaleFile, fileDeltas); err != nil {
			return nil, fmt.Errorf("%s: write file deltas: %w", key, err)
		}
		app := delta.AppDeltas(key, in.window, table)
		if err := store.WriteDeltas(a.layout.DeltasFile(key, models.ScaleApp), models.ScaleApp, []models.DeltaRecord{app}); err != nil {
			return nil, fmt.Errorf("%s: write app deltas: %w", key, err)
		}

		result.Projects = append(result.Projects, in.summary)
		logging.ForProject(a.logger, key).Info("project analyzed",
			"revisions", in.summary.Revisions,
			"events", in.summary.Events,
			"dropped", in.summary.Dropped.Total(),
			"file_deltas", len(fileDeltas))
	}
	return result, nil
}

// prepare normalizes the processed reports of the project's window into its
// events file and completes its file listing. A project that was never
// enumerated, or has no processed revision in its window, is missing data
// and gets no events file.
func (a *Analyzer) prepare(ctx context.Context, project models.Project) (projectInput, error) {
	key := project.Key()
	logger := logging.ForProject(a.logger, key)
	in := projectInput{summary: ProjectAnalysis{Project: key, Dropped: normalize.Dropped{}}}

	revs, err := store.ReadRevisions(a.layout.RevisionsFile(key))
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("project has no revision list; mine it first")
		return in, &smelltable.MissingDataError{Project: key}
	}
	if err != nil {
		return in, err
	}

	done, err := tracker.Processed(a.layout.IssuesDir(key))
	if err != nil {
		return in, err
	}
	recent := revision.RecentWindow(revs, a.window)
	for _, rev := range recent {
		if done.Has(rev.Hash) {
			in.window = append(in.window, rev)
		}
	}
	if len(in.window) == 0 {
		logger.Warn("project has no processed revisions in its window; mine it first")
		return in, &smelltable.MissingDataError{Project: key}
	}
	if len(in.window) < len(recent) {
		// Deltas of a partial window fall out of the complete set.
		logger.Warn("window is partly mined", "processed", len(in.window), "window", len(recent))
	}

	var events []models.CanonicalEvent
	for _, rev := range in.window {
		if err := ctx.Err(); err != nil {
			return in, err
		}
		report, err := normalize.LoadReport(a.layout.ReportFile(key, rev.Hash))
		if err != nil {
			return in, err
		}
		evs, dropped := a.normalizer.Normalize(project, rev.Hash, report)
		events = append(events, evs...)
		in.summary.Dropped.Add(dropped)
	}
	if err := store.WriteEvents(a.layout.EventsFile(key), events); err != nil {
		return in, fmt.Errorf("write events: %w", err)
	}

	in.files, err = a.listing(ctx, project, in.window)
	if err != nil {
		return in, err
	}
	in.summary.Revisions = len(in.window)
	in.summary.Events = len(events)
	in.summary.Files = len(in.files)
	return in, nil
}

// listing returns the valid files of revs, computing and persisting the
// listings of revisions not yet in the project's files table.
func (a *Analyzer) listing(ctx context.Context, project models.Project, revs []models.Revision) ([]models.FileKey, error) {
	key := project.Key()
	path := a.layout.FilesFile(key)

	all, err := store.ReadFiles(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	listed := make(map[string]bool)
	for _, k := range all {
		listed[k.Revision] = true
	}

	var lister Lister
	changed := false
	for _, rev := range revs {
		if listed[rev.Hash] {
			continue
		}
		if lister == nil {
			if lister, err = a.openLister(ctx, project); err != nil {
				return nil, fmt.Errorf("open repository: %w", err)
			}
		}
		names, err := lister.ValidFiles(rev)
		if err != nil {
			return nil, fmt.Errorf("list files of %s: %w", rev.ShortHash(), err)
		}
		for _, name := range names {
			all = append(all, models.FileKey{Project: key, Revision: rev.Hash, File: name})
		}
		changed = true
	}
	if changed {
		if err := store.WriteFiles(path, all); err != nil {
			return nil, fmt.Errorf("write file listing: %w", err)
		}
	}

	inScope := make(map[string]bool, len(revs))
	for _, r := range revs {
		inScope[r.Hash] = true
	}
	out := make([]models.FileKey, 0, len(all))
	for _, k := range all {
		if inScope[k.Revision] {
			out = append(out, k)
		}
	}
	return out, nil
}

// LoadDataset reads the persisted smell matrix and deltas of projects.
func LoadDataset(cfg *config.Config, projects []models.Project) (*aggregate.Dataset, error) {
	layout := store.New(cfg.Data.Root)

	rules, rows, err := store.ReadSmells(layout.SmellsFile())
	if err != nil {
		return nil, fmt.Errorf("read smell table (run analyze first): %w", err)
	}

	fileDeltas := make([][]models.DeltaRecord, len(projects))
	appDeltas := make([][]models.DeltaRecord, len(projects))
	p := pool.New().WithErrors().WithMaxGoroutines(max(cfg.Workers, 1))
	for i, project := range projects {
		p.Go(func() error {
			key := project.Key()
			files, err := store.ReadDeltas(layout.DeltasFile(key, models.ScaleFile), models.ScaleFile)
			if err != nil {
				return deltaReadError(key, err)
			}
			app, err := store.ReadDeltas(layout.DeltasFile(key, models.ScaleApp), models.ScaleApp)
			if err != nil {
				return deltaReadError(key, err)
			}
			fileDeltas[i], appDeltas[i] = files, app
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	ds := &aggregate.Dataset{
		Projects: projects,
		Table:    smelltable.NewTable(rules, rows),
		Window:   cfg.Revisions.Window,
	}
	for i := range projects {
		ds.FileDeltas = append(ds.FileDeltas, fileDeltas[i]...)
		ds.AppDeltas = append(ds.AppDeltas, appDeltas[i]...)
	}
	return ds, nil
}

func deltaReadError(project string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &smelltable.MissingDataError{Project: project}
	}
	return fmt.Errorf("%s: read deltas: %w", project, err)
}
