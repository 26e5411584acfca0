// Package pipeline drives mining runs across projects and turns the persisted
// reports into analysis tables.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/smelltrend/internal/logging"
	"github.com/panbanda/smelltrend/internal/metrics"
	"github.com/panbanda/smelltrend/internal/progress"
	"github.com/panbanda/smelltrend/internal/vcs"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/revision"
	"github.com/panbanda/smelltrend/pkg/sonar"
	"github.com/panbanda/smelltrend/pkg/store"
	"github.com/panbanda/smelltrend/pkg/tracker"
)

// Source is an opened project clone.
type Source interface {
	sonar.Checkouter
	Enumerate(ctx context.Context) ([]models.Revision, error)
}

// Processor takes one revision to a persisted report.
type Processor interface {
	Process(ctx context.Context, src sonar.Checkouter, rev models.Revision, reportPath string) (models.RawIssueReport, error)
}

// Opener opens the clone of a project.
type Opener func(ctx context.Context, project models.Project) (Source, error)

// RevisionOpener opens clones under the configured repos directory.
func RevisionOpener(cfg *config.Config, opener vcs.Opener, logger *slog.Logger, refresh bool) Opener {
	return func(ctx context.Context, p models.Project) (Source, error) {
		src, err := revision.Open(ctx, cfg, opener, p,
			revision.WithRefresh(refresh),
			revision.WithLogger(logging.ForProject(logger, p.Key())),
		)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// Result describes what a run did for one project.
type Result struct {
	Project   string        `json:"project"`
	Revisions int           `json:"revisions"`
	Window    int           `json:"window"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Remaining int           `json:"remaining"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Miner runs the revision loop of every project on a bounded worker pool.
type Miner struct {
	layout   store.Layout
	window   int
	workers  int
	open     Opener
	driver   Processor
	locks    *KeyedMutex
	logger   *slog.Logger
	metrics  *metrics.Metrics
	progress io.Writer
	now      func() time.Time
}

// Option configures a Miner.
type Option func(*Miner)

// WithOpener replaces how project clones are opened.
func WithOpener(open Opener) Option {
	return func(m *Miner) {
		m.open = open
	}
}

// WithWorkers sets how many projects are mined concurrently.
func WithWorkers(n int) Option {
	return func(m *Miner) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLocks shares a KeyedMutex with other miners.
func WithLocks(locks *KeyedMutex) Option {
	return func(m *Miner) {
		if locks != nil {
			m.locks = locks
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Miner) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Miner) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithProgress draws per-project progress bars on w.
func WithProgress(w io.Writer) Option {
	return func(m *Miner) {
		m.progress = w
	}
}

// NewMiner creates a miner that persists reports under cfg.Data.Root.
func NewMiner(cfg *config.Config, driver Processor, opts ...Option) *Miner {
	m := &Miner{
		layout:  store.New(cfg.Data.Root),
		window:  cfg.Revisions.Window,
		workers: cfg.Workers,
		driver:  driver,
		locks:   NewKeyedMutex(),
		logger:  slog.Default(),
		metrics: metrics.New(),
		now:     time.Now,
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.open == nil {
		m.open = RevisionOpener(cfg, nil, m.logger, false)
	}
	return m
}

// Run mines every project. A failing project does not stop the others; the
// failures are returned together as *RunErrors.
func (m *Miner) Run(ctx context.Context, projects []models.Project) ([]Result, error) {
	results := make([]Result, len(projects))
	errs := &RunErrors{}

	p := pool.New().WithMaxGoroutines(m.workers)
	for i, project := range projects {
		p.Go(func() {
			res, err := m.MineProject(ctx, project)
			results[i] = res
			if err != nil {
				m.metrics.Error(project.Key(), "project")
				logging.ForProject(m.logger, project.Key()).Error("project failed", "error", err)
				errs.Add(project.Key(), err)
			}
		})
	}
	p.Wait()

	if errs.HasErrors() {
		return results, errs
	}
	return results, nil
}

// MineProject processes the remaining revisions of one project's window,
// oldest first, and stops at the first error.
func (m *Miner) MineProject(ctx context.Context, project models.Project) (Result, error) {
	key := project.Key()
	logger := logging.ForProject(m.logger, key)
	start := m.now()
	res := Result{Project: key}

	src, err := m.open(ctx, project)
	if err != nil {
		return res, fmt.Errorf("open repository: %w", err)
	}
	revs, err := src.Enumerate(ctx)
	if err != nil {
		return res, fmt.Errorf("enumerate revisions: %w", err)
	}
	window := revision.RecentWindow(revs, m.window)
	done, err := tracker.Processed(m.layout.IssuesDir(key))
	if err != nil {
		return res, fmt.Errorf("list processed revisions: %w", err)
	}
	remaining := tracker.Remaining(window, done)

	res.Revisions = len(revs)
	res.Window = len(window)
	res.Remaining = len(remaining)
	if len(remaining) == 0 {
		logger.Info("project up to date", "window", len(window))
		return res, nil
	}
	logger.Info("mining project", "revisions", len(revs), "window", len(window), "remaining", len(remaining))

	var bar *progress.Tracker
	if m.progress != nil {
		bar = progress.NewTrackerTo(m.progress, key, len(remaining))
	}

	for i, rev := range remaining {
		if err := ctx.Err(); err != nil {
			bar.FinishError(err)
			return res, err
		}
		bar.Describe(rev.ShortHash())

		skipped, err := m.process(ctx, src, rev)
		if err != nil {
			bar.FinishError(err)
			return res, fmt.Errorf("revision %s: %w", rev.ShortHash(), err)
		}
		if skipped {
			res.Skipped++
		} else {
			res.Processed++
		}
		res.Remaining--
		bar.Tick()
		m.logETA(logger, start, i+1, len(remaining))
	}

	res.Elapsed = m.now().Sub(start)
	bar.FinishSuccess()
	logger.Info("project complete", "processed", res.Processed, "elapsed", res.Elapsed.Round(time.Second))
	return res, nil
}

// process runs one revision under the project's lock. A report written by
// another worker while this one waited counts as skipped.
func (m *Miner) process(ctx context.Context, src Source, rev models.Revision) (bool, error) {
	key := src.Project().Key()
	unlock := m.locks.Lock(key)
	defer unlock()

	done, err := tracker.Processed(m.layout.IssuesDir(key))
	if err != nil {
		return false, err
	}
	if done.Has(rev.Hash) {
		return true, nil
	}
	_, err = m.driver.Process(ctx, src, rev, m.layout.ReportFile(key, rev.Hash))
	return false, err
}

func (m *Miner) logETA(logger *slog.Logger, start time.Time, done, total int) {
	if done >= total {
		return
	}
	now := m.now()
	per := now.Sub(start) / time.Duration(done)
	eta := per * time.Duration(total-done)
	logger.Info("progress",
		"done", done,
		"total", total,
		"eta", humanize.RelTime(now, now.Add(eta), "left", ""))
}
