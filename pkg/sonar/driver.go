package sonar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panbanda/smelltrend/internal/metrics"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/store"
)

// Anomalies abort the current project: a scan that finds nothing or more than
// the server can page through means the analysis itself went wrong.
var (
	ErrNoIssues      = errors.New("no issues found")
	ErrTooManyIssues = errors.New("too many issues to fetch")
	ErrNotReady      = errors.New("analysis server not ready")
)

// Defaults matching the server's limits.
const (
	DefaultPageSize     = 500
	DefaultMaxIssues    = 10000
	DefaultPollInterval = 5 * time.Second
)

// Stage is a step of the per-revision state machine.
type Stage string

const (
	StageCheckedOut  Stage = "CHECKED_OUT"
	StageServerReset Stage = "SERVER_RESET"
	StageScanned     Stage = "SCANNED"
	StagePolling     Stage = "POLLING"
	StageFetched     Stage = "FETCHED"
	StagePersisted   Stage = "PERSISTED"
)

// API is the part of the server the driver needs.
type API interface {
	DeleteProject(ctx context.Context, key string) error
	ActivityStatus(ctx context.Context, key string) (ActivityStatus, error)
	SearchIssues(ctx context.Context, key string, page, pageSize int) (*IssuePage, error)
}

// Runner prepares and runs an analysis of a working tree.
type Runner interface {
	WriteProperties(dir, key string) error
	Run(ctx context.Context, dir string) ([]byte, error)
}

// Checkouter moves a project's working tree between revisions.
type Checkouter interface {
	Project() models.Project
	Dir() string
	Checkout(ctx context.Context, rev models.Revision) (models.Revision, error)
}

// Driver runs one revision through checkout, scan, poll, fetch and persist.
type Driver struct {
	api          API
	runner       Runner
	pageSize     int
	maxIssues    int
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPageSize sets the issue page size.
func WithPageSize(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithMaxIssues sets the largest issue total that is fetched.
func WithMaxIssues(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.maxIssues = n
		}
	}
}

// WithPolling sets the poll interval and the overall wait bound. A zero
// maxWait polls until the server is idle or the context ends.
func WithPolling(interval, maxWait time.Duration) DriverOption {
	return func(d *Driver) {
		if interval > 0 {
			d.pollInterval = interval
		}
		if maxWait >= 0 {
			d.maxWait = maxWait
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) DriverOption {
	return func(d *Driver) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDriver creates a driver.
func NewDriver(api API, runner Runner, opts ...DriverOption) *Driver {
	d := &Driver{
		api:          api,
		runner:       runner,
		pageSize:     DefaultPageSize,
		maxIssues:    DefaultMaxIssues,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		metrics:      metrics.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDriverFromConfig builds the client, scanner and driver described by cfg.
func NewDriverFromConfig(cfg *config.Config, opts ...DriverOption) (*Driver, error) {
	interval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}
	maxWait, err := cfg.MaxWait()
	if err != nil {
		return nil, err
	}

	client := NewClient(cfg.Sonar.URL,
		WithBasicAuth(cfg.Sonar.Username, cfg.Sonar.Password),
		WithToken(cfg.Sonar.Token),
	)
	runner := &Scanner{Path: cfg.Sonar.Scanner, HostURL: cfg.Sonar.URL, Token: cfg.Sonar.Token}

	all := append([]DriverOption{
		WithPageSize(cfg.Sonar.PageSize),
		WithMaxIssues(cfg.Sonar.MaxIssues),
		WithPolling(interval, maxWait),
	}, opts...)
	return NewDriver(client, runner, all...), nil
}

// WaitReady polls the activity status until every counter is zero. Request
// errors are logged and retried.
func (d *Driver) WaitReady(ctx context.Context, key string) error {
	logger := d.logger.With("stage", StagePolling)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		d.metrics.PollAttempts.WithLabelValues(key).Inc()

		status, err := d.api.ActivityStatus(ctx, key)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			d.metrics.Error(key, "poll")
			logger.Warn("activity status request failed", "attempt", attempt, "error", err)
		case status.Idle():
			logger.Debug("server ready", "attempts", attempt)
			return nil
		default:
			logger.Info("server busy",
				"pending", status.Pending,
				"in_progress", status.InProgress,
				"failing", status.Failing)
		}

		if d.maxWait > 0 && time.Since(start)+d.pollInterval > d.maxWait {
			return fmt.Errorf("%w: %s still busy after %s (%d polls)", ErrNotReady, key, d.maxWait, attempt)
		}

		timer := time.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// FetchIssues pages through every issue of a project. An empty result or one
// larger than the configured maximum is rejected before anything is returned.
func (d *Driver) FetchIssues(ctx context.Context, key string) (models.RawIssueReport, error) {
	var issues models.RawIssueReport
	for page := 1; ; page++ {
		res, err := d.api.SearchIssues(ctx, key, page, d.pageSize)
		if err != nil {
			return nil, fmt.Errorf("search issues page %d: %w", page, err)
		}

		total := res.Paging.Total
		if total == 0 {
			return nil, fmt.Errorf("%w for %s", ErrNoIssues, key)
		}
		if total > d.maxIssues {
			return nil, fmt.Errorf("%w for %s: %d > %d", ErrTooManyIssues, key, total, d.maxIssues)
		}

		issues = append(issues, res.Issues...)
		pages := (total + d.pageSize - 1) / d.pageSize
		d.logger.Debug("fetched issue page", "stage", StageFetched, "page", page, "pages", pages)
		if page >= pages {
			if len(issues) != total {
				d.logger.Warn("issue count differs from reported total", "fetched", len(issues), "total", total)
			}
			break
		}
	}

	d.metrics.IssuesFetched.WithLabelValues(key).Add(float64(len(issues)))
	return issues, nil
}

// Process takes one revision from checkout to a persisted report at reportPath.
// The report is written atomically, so an interrupted run leaves the revision
// unprocessed rather than half-written.
func (d *Driver) Process(ctx context.Context, src Checkouter, rev models.Revision, reportPath string) (models.RawIssueReport, error) {
	project := src.Project()
	key := project.Key()
	logger := d.logger.With("revision", rev.ShortHash())

	step := func(stage Stage, fn func() error) error {
		start := time.Now()
		err := fn()
		d.metrics.ObserveStage(string(stage), time.Since(start))
		if err != nil {
			d.metrics.Error(key, errorKind(err))
			return fmt.Errorf("%s: %w", stage, err)
		}
		logger.Info("stage complete", "stage", stage, "elapsed", time.Since(start).Round(time.Millisecond))
		return nil
	}

	var report models.RawIssueReport
	err := step(StageCheckedOut, func() error {
		var err error
		rev, err = src.Checkout(ctx, rev)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := step(StageServerReset, func() error { return d.api.DeleteProject(ctx, key) }); err != nil {
		return nil, err
	}

	err = step(StageScanned, func() error {
		if err := d.runner.WriteProperties(src.Dir(), key); err != nil {
			return err
		}
		if out, err := d.runner.Run(ctx, src.Dir()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("scanner exited with error", "stage", StageScanned, "error", err, "output_bytes", len(out))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := step(StagePolling, func() error { return d.WaitReady(ctx, key) }); err != nil {
		return nil, err
	}

	err = step(StageFetched, func() error {
		var err error
		report, err = d.FetchIssues(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := step(StagePersisted, func() error { return store.WriteReport(reportPath, report) }); err != nil {
		return nil, err
	}

	d.metrics.RevisionsProcessed.WithLabelValues(key).Inc()
	logger.Info("revision processed", "issues", len(report), "date", rev.Date.Format(models.RevisionDateLayout))
	return report, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoIssues):
		return "no_issues"
	case errors.Is(err, ErrTooManyIssues):
		return "too_many_issues"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		return "http"
	}
	return "other"
}
