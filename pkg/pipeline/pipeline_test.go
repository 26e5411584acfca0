package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/smelltrend/internal/logging"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/sonar"
	"github.com/panbanda/smelltrend/pkg/store"
	"github.com/panbanda/smelltrend/pkg/tracker"
)

var (
	express = models.Project{Owner: "expressjs", Name: "express", Language: models.LangJavaScript}
	formik  = models.Project{Owner: "formium", Name: "formik", Language: models.LangTypeScript}
)

func revs(hashes ...string) []models.Revision {
	out := make([]models.Revision, len(hashes))
	for i, h := range hashes {
		out[i] = models.Revision{Hash: h, Position: i, Date: time.Date(2021, 1, 1+i, 0, 0, 0, 0, time.UTC)}
	}
	return out
}

func testConfig(t *testing.T, window int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Data.Root = t.TempDir()
	cfg.Revisions.Window = window
	cfg.Workers = 2
	cfg.Projects = []models.Project{express, formik}
	return cfg
}

type fakeSource struct {
	project models.Project
	revs    []models.Revision
}

func (s *fakeSource) Project() models.Project { return s.project }
func (s *fakeSource) Dir() string             { return "" }

func (s *fakeSource) Checkout(_ context.Context, rev models.Revision) (models.Revision, error) {
	return rev, nil
}

func (s *fakeSource) Enumerate(context.Context) ([]models.Revision, error) {
	return s.revs, nil
}

func openerFor(sources map[string]*fakeSource) Opener {
	return func(_ context.Context, p models.Project) (Source, error) {
		src, ok := sources[p.Key()]
		if !ok {
			return nil, fmt.Errorf("clone %s: repository not found", p.Slug())
		}
		return src, nil
	}
}

// fakeProcessor persists a one-issue report per revision and records the
// order in which revisions were processed.
type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	failAt    string
	active    map[string]*atomic.Int32
	overlap   atomic.Bool
	delay     time.Duration
}

func (f *fakeProcessor) Process(_ context.Context, src sonar.Checkouter, rev models.Revision, reportPath string) (models.RawIssueReport, error) {
	key := src.Project().Key()
	f.mu.Lock()
	if f.active == nil {
		f.active = map[string]*atomic.Int32{}
	}
	counter, ok := f.active[key]
	if !ok {
		counter = &atomic.Int32{}
		f.active[key] = counter
	}
	f.mu.Unlock()

	if counter.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer counter.Add(-1)
	time.Sleep(f.delay)

	if rev.Hash == f.failAt {
		return nil, fmt.Errorf("%s: %w", sonar.StageFetched, sonar.ErrNoIssues)
	}
	report := models.RawIssueReport{{Rule: "javascript:S1541", Component: key + ":index.js", Type: "CODE_SMELL", Severity: "CRITICAL"}}
	if err := store.WriteReport(reportPath, report); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.processed = append(f.processed, key+"/"+rev.Hash)
	f.mu.Unlock()
	return report, nil
}

func processedHashes(t *testing.T, layout store.Layout, project string) tracker.Set {
	t.Helper()
	done, err := tracker.Processed(layout.IssuesDir(project))
	require.NoError(t, err)
	return done
}

func TestMineProject_ProcessesWindowOldestFirst(t *testing.T) {
	cfg := testConfig(t, 3)
	proc := &fakeProcessor{}
	m := NewMiner(cfg, proc,
		WithOpener(openerFor(map[string]*fakeSource{"express": {project: express, revs: revs("r1", "r2", "r3", "r4", "r5")}})),
		WithLogger(logging.Discard()),
	)

	res, err := m.MineProject(context.Background(), express)
	require.NoError(t, err)
	assert.Equal(t, []string{"express/r3", "express/r4", "express/r5"}, proc.processed)
	assert.Equal(t, Result{Project: "express", Revisions: 5, Window: 3, Processed: 3, Remaining: 0, Elapsed: res.Elapsed}, res)

	done := processedHashes(t, store.New(cfg.Data.Root), "express")
	assert.Len(t, done, 3)
	assert.False(t, done.Has("r1"))
}

func TestMineProject_ResumesAfterFailure(t *testing.T) {
	cfg := testConfig(t, 4)
	layout := store.New(cfg.Data.Root)
	opener := WithOpener(openerFor(map[string]*fakeSource{"express": {project: express, revs: revs("r1", "r2", "r3", "r4")}}))

	// r1 was processed by an earlier run.
	require.NoError(t, store.WriteReport(layout.ReportFile("express", "r1"), models.RawIssueReport{}))

	failing := &fakeProcessor{failAt: "r3"}
	_, err := NewMiner(cfg, failing, opener, WithLogger(logging.Discard())).MineProject(context.Background(), express)
	require.Error(t, err)
	assert.ErrorIs(t, err, sonar.ErrNoIssues)
	assert.Contains(t, err.Error(), "revision r3")
	assert.Equal(t, []string{"express/r2"}, failing.processed, "r4 must not be attempted after r3 fails")

	resumed := &fakeProcessor{}
	res, err := NewMiner(cfg, resumed, opener, WithLogger(logging.Discard())).MineProject(context.Background(), express)
	require.NoError(t, err)
	assert.Equal(t, []string{"express/r3", "express/r4"}, resumed.processed)
	assert.Equal(t, 2, res.Processed)

	again := &fakeProcessor{}
	res, err = NewMiner(cfg, again, opener, WithLogger(logging.Discard())).MineProject(context.Background(), express)
	require.NoError(t, err)
	assert.Empty(t, again.processed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMineProject_CanceledContext(t *testing.T) {
	cfg := testConfig(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &fakeProcessor{}
	m := NewMiner(cfg, proc,
		WithOpener(openerFor(map[string]*fakeSource{"express": {project: express, revs: revs("r1", "r2")}})),
		WithLogger(logging.Discard()),
	)
	_, err := m.MineProject(ctx, express)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, proc.processed)
}

func TestRun_CollectsErrorsPerProject(t *testing.T) {
	cfg := testConfig(t, 2)
	proc := &fakeProcessor{}
	m := NewMiner(cfg, proc,
		WithOpener(openerFor(map[string]*fakeSource{"express": {project: express, revs: revs("r1", "r2")}})),
		WithLogger(logging.Discard()),
	)

	results, err := m.Run(context.Background(), []models.Project{express, formik})
	require.Error(t, err)

	var runErr *RunErrors
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, []string{"formik"}, runErr.Failed())
	assert.Contains(t, runErr.Error(), "formik: open repository")

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Processed)
	assert.Len(t, processedHashes(t, store.New(cfg.Data.Root), "express"), 2)
}

func TestRun_SameProjectNeverOverlaps(t *testing.T) {
	cfg := testConfig(t, 3)
	cfg.Workers = 3
	proc := &fakeProcessor{delay: 5 * time.Millisecond}
	m := NewMiner(cfg, proc,
		WithOpener(openerFor(map[string]*fakeSource{"express": {project: express, revs: revs("r1", "r2", "r3")}})),
		WithLogger(logging.Discard()),
	)

	results, err := m.Run(context.Background(), []models.Project{express, express, express})
	require.NoError(t, err)
	assert.False(t, proc.overlap.Load(), "two scans of the same project ran at once")
	assert.Len(t, proc.processed, 3, "each revision is processed exactly once")

	total := 0
	for _, r := range results {
		total += r.Processed
	}
	assert.Equal(t, 3, total)
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()

	unlockA := k.Lock("express")
	unlockB := k.Lock("formik") // different key does not block
	assert.Equal(t, 2, k.Len())

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("express")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key should block")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Lock should succeed once the key is released")
	}
	unlockB()
	assert.Eventually(t, func() bool { return k.Len() == 0 }, time.Second, time.Millisecond)
}

func TestRunErrors(t *testing.T) {
	errs := &RunErrors{}
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no errors", errs.Error())

	errs.Add("express", sonar.ErrTooManyIssues)
	assert.Equal(t, "express: too many issues to fetch", errs.Error())

	errs.Add("bower", errors.New("clone failed"))
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "2 projects failed (first: express: too many issues to fetch)", errs.Error())
	assert.Equal(t, []string{"bower", "express"}, errs.Failed())
	assert.ErrorIs(t, errs, sonar.ErrTooManyIssues)
}

func TestStatus(t *testing.T) {
	cfg := testConfig(t, 2)
	layout := store.New(cfg.Data.Root)
	require.NoError(t, store.WriteRevisions(layout.RevisionsFile("express"), revs("r1", "r2", "r3")))
	require.NoError(t, store.WriteReport(layout.ReportFile("express", "r3"), models.RawIssueReport{}))
	require.NoError(t, store.WriteReport(layout.ReportFile("express", "r1"), models.RawIssueReport{}))

	statuses, err := Status(layout, cfg.Projects, cfg.Revisions.Window)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	st := statuses[0]
	assert.True(t, st.Enumerated)
	assert.Equal(t, 3, st.Revisions)
	assert.Len(t, st.Fingerprint, 16)
	assert.Equal(t, tracker.Progress{Total: 2, Processed: 1, Remaining: 1}, st.Progress)

	assert.False(t, statuses[1].Enumerated)
	assert.Equal(t, 0, statuses[1].Total)
}
