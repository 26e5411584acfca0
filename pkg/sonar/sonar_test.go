package sonar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/smelltrend/internal/logging"
	"github.com/panbanda/smelltrend/internal/metrics"
	"github.com/panbanda/smelltrend/pkg/models"
)

// fakeServer mimics the three endpoints the driver uses.
type fakeServer struct {
	mu         sync.Mutex
	deleteCode int
	statuses   []ActivityStatus // served in order, last one repeats
	statusErrs int              // leading activity requests answered with 500
	total      int
	issues     []models.RawIssue
	deletes    int
	polls      int
	pages      []int
	lastQuery  map[string]string
	user, pass string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(deletePath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.user, f.pass, _ = r.BasicAuth()
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.deletes++
		code := f.deleteCode
		if code == 0 {
			code = http.StatusNoContent
		}
		w.WriteHeader(code)
	})
	mux.HandleFunc(activityPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.polls++
		if f.statusErrs > 0 {
			f.statusErrs--
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		status := ActivityStatus{}
		if len(f.statuses) > 0 {
			status = f.statuses[0]
			if len(f.statuses) > 1 {
				f.statuses = f.statuses[1:]
			}
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc(issuesPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := r.URL.Query()
		f.lastQuery = map[string]string{}
		for k := range q {
			f.lastQuery[k] = q.Get(k)
		}
		page, _ := strconv.Atoi(q.Get("p"))
		size, _ := strconv.Atoi(q.Get("ps"))
		f.pages = append(f.pages, page)

		lo := (page - 1) * size
		hi := lo + size
		if lo > len(f.issues) {
			lo = len(f.issues)
		}
		if hi > len(f.issues) {
			hi = len(f.issues)
		}
		_ = json.NewEncoder(w).Encode(IssuePage{
			Paging: Paging{PageIndex: page, PageSize: size, Total: f.total},
			Issues: f.issues[lo:hi],
		})
	})
	return mux
}

func makeIssues(n int) []models.RawIssue {
	out := make([]models.RawIssue, n)
	for i := range out {
		out[i] = models.RawIssue{
			Key:       fmt.Sprintf("AX%d", i),
			Rule:      "javascript:S1541",
			Component: fmt.Sprintf("demo:src/f%d.js", i%3),
			Type:      models.IssueTypeCodeSmell,
			Severity:  "CRITICAL",
			Tags:      []string{"brain-overload"},
		}
	}
	return out
}

func newTestDriver(t *testing.T, f *fakeServer, opts ...DriverOption) (*Driver, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	m := metrics.New()
	client := NewClient(srv.URL, WithToken("squ_token"))
	all := append([]DriverOption{
		WithLogger(logging.Discard()),
		WithMetrics(m),
		WithPolling(time.Millisecond, 0),
	}, opts...)
	return NewDriver(client, &Scanner{Path: "true"}, all...), m
}

func TestClient_DeleteProject(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{"deleted", http.StatusNoContent, false},
		{"ok", http.StatusOK, false},
		{"missing project", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeServer{deleteCode: tt.code}
			srv := httptest.NewServer(f.handler())
			defer srv.Close()

			err := NewClient(srv.URL, WithBasicAuth("admin", "secret")).DeleteProject(context.Background(), "demo")
			if tt.wantErr {
				var herr *HTTPError
				require.ErrorAs(t, err, &herr)
				assert.Equal(t, tt.code, herr.StatusCode)
				assert.Contains(t, herr.URL, deletePath)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "admin", f.user)
			assert.Equal(t, "secret", f.pass)
		})
	}
}

func TestClient_SearchIssuesFilters(t *testing.T) {
	f := &fakeServer{total: 2, issues: makeIssues(2)}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	page, err := NewClient(srv.URL).SearchIssues(context.Background(), "demo", 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Paging.Total)
	assert.Len(t, page.Issues, 2)
	assert.Equal(t, "demo", f.lastQuery["componentKeys"])
	assert.Equal(t, "js,ts", f.lastQuery["languages"])
	assert.Equal(t, "BUG,CODE_SMELL", f.lastQuery["types"])
	assert.Equal(t, "OPEN,REOPENED,CONFIRMED", f.lastQuery["statuses"])
	assert.Equal(t, "500", f.lastQuery["ps"])
}

func TestWaitReady_PollsUntilIdle(t *testing.T) {
	f := &fakeServer{
		statusErrs: 1,
		statuses: []ActivityStatus{
			{Pending: 1},
			{InProgress: 1},
			{Failing: 1},
			{},
		},
	}
	d, m := newTestDriver(t, f)

	require.NoError(t, d.WaitReady(context.Background(), "demo"))
	assert.Equal(t, 5, f.polls)
	assert.Equal(t, 5.0, prom.ToFloat64(m.PollAttempts.WithLabelValues("demo")))
	assert.Equal(t, 1.0, prom.ToFloat64(m.Errors.WithLabelValues("demo", "poll")))
}

func TestWaitReady_MaxWait(t *testing.T) {
	f := &fakeServer{statuses: []ActivityStatus{{Pending: 3}}}
	d, _ := newTestDriver(t, f, WithPolling(5*time.Millisecond, 30*time.Millisecond))

	err := d.WaitReady(context.Background(), "demo")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.GreaterOrEqual(t, f.polls, 2)
}

func TestWaitReady_ContextCanceled(t *testing.T) {
	f := &fakeServer{statuses: []ActivityStatus{{InProgress: 1}}}
	d, _ := newTestDriver(t, f, WithPolling(10*time.Millisecond, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	err := d.WaitReady(ctx, "demo")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchIssues_Paginates(t *testing.T) {
	tests := []struct {
		total     int
		pageSize  int
		wantPages []int
	}{
		{1, 500, []int{1}},
		{500, 500, []int{1}},
		{501, 500, []int{1, 2}},
		{7, 3, []int{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.pageSize), func(t *testing.T) {
			f := &fakeServer{total: tt.total, issues: makeIssues(tt.total)}
			d, m := newTestDriver(t, f, WithPageSize(tt.pageSize))

			issues, err := d.FetchIssues(context.Background(), "demo")
			require.NoError(t, err)
			assert.Len(t, issues, tt.total)
			assert.Equal(t, tt.wantPages, f.pages)
			assert.Equal(t, float64(tt.total), prom.ToFloat64(m.IssuesFetched.WithLabelValues("demo")))
		})
	}
}

func TestFetchIssues_Anomalies(t *testing.T) {
	t.Run("no issues", func(t *testing.T) {
		d, _ := newTestDriver(t, &fakeServer{total: 0})
		_, err := d.FetchIssues(context.Background(), "demo")
		assert.ErrorIs(t, err, ErrNoIssues)
	})

	t.Run("too many issues", func(t *testing.T) {
		f := &fakeServer{total: 10001, issues: makeIssues(10)}
		d, _ := newTestDriver(t, f)
		_, err := d.FetchIssues(context.Background(), "demo")
		assert.ErrorIs(t, err, ErrTooManyIssues)
		assert.Equal(t, []int{1}, f.pages)
	})

	t.Run("exactly the maximum", func(t *testing.T) {
		f := &fakeServer{total: 6, issues: makeIssues(6)}
		d, _ := newTestDriver(t, f, WithMaxIssues(6), WithPageSize(4))
		issues, err := d.FetchIssues(context.Background(), "demo")
		require.NoError(t, err)
		assert.Len(t, issues, 6)
	})
}

type fakeCheckout struct {
	dir     string
	checked []string
	err     error
}

func (c *fakeCheckout) Project() models.Project {
	return models.Project{Owner: "acme", Name: "demo", Language: models.LangJavaScript}
}

func (c *fakeCheckout) Dir() string { return c.dir }

func (c *fakeCheckout) Checkout(_ context.Context, rev models.Revision) (models.Revision, error) {
	if c.err != nil {
		return models.Revision{}, c.err
	}
	c.checked = append(c.checked, rev.Hash)
	return rev, nil
}

func TestProcess_PersistsReport(t *testing.T) {
	f := &fakeServer{statuses: []ActivityStatus{{Pending: 1}, {}}, total: 3, issues: makeIssues(3)}
	d, m := newTestDriver(t, f)

	src := &fakeCheckout{dir: t.TempDir()}
	reportPath := filepath.Join(t.TempDir(), "issues", "demo", "abc123.json")
	rev := models.Revision{Hash: "abc123"}

	report, err := d.Process(context.Background(), src, rev, reportPath)
	require.NoError(t, err)
	assert.Len(t, report, 3)
	assert.Equal(t, []string{"abc123"}, src.checked)
	assert.Equal(t, 1, f.deletes)

	props, err := os.ReadFile(filepath.Join(src.dir, PropertiesFile))
	require.NoError(t, err)
	assert.Contains(t, string(props), "sonar.projectKey=demo\n")
	assert.Contains(t, string(props), "sonar.exclusions=**/test/**/*,**/tests/**/*,**/*test*")

	var persisted models.RawIssueReport
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, report, persisted)
	assert.Equal(t, 1.0, prom.ToFloat64(m.RevisionsProcessed.WithLabelValues("demo")))
}

func TestProcess_AnomalyLeavesNoReport(t *testing.T) {
	f := &fakeServer{total: 0}
	d, m := newTestDriver(t, f)

	reportPath := filepath.Join(t.TempDir(), "abc.json")
	_, err := d.Process(context.Background(), &fakeCheckout{dir: t.TempDir()}, models.Revision{Hash: "abc"}, reportPath)
	require.ErrorIs(t, err, ErrNoIssues)
	assert.Contains(t, err.Error(), string(StageFetched))

	_, statErr := os.Stat(reportPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 1.0, prom.ToFloat64(m.Errors.WithLabelValues("demo", "no_issues")))
}

func TestProcess_CheckoutFailureStopsEarly(t *testing.T) {
	f := &fakeServer{total: 1, issues: makeIssues(1)}
	d, _ := newTestDriver(t, f)

	src := &fakeCheckout{dir: t.TempDir(), err: errors.New("unknown revision")}
	_, err := d.Process(context.Background(), src, models.Revision{Hash: "abc"}, filepath.Join(t.TempDir(), "abc.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(StageCheckedOut))
	assert.Equal(t, 0, f.deletes)
}

func TestProcess_ScannerFailureIsNotFatal(t *testing.T) {
	f := &fakeServer{total: 1, issues: makeIssues(1)}
	d, _ := newTestDriver(t, f)
	d.runner = &Scanner{Path: "false"}

	_, err := d.Process(context.Background(), &fakeCheckout{dir: t.TempDir()}, models.Revision{Hash: "abc"}, filepath.Join(t.TempDir(), "abc.json"))
	assert.NoError(t, err)
}

func TestScanner_RunPassesCredentials(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-scanner")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > args.txt\n"), 0o755))

	s := &Scanner{Path: script, HostURL: "http://sonar:9000", Token: "squ_abc"}
	_, err := s.Run(context.Background(), dir)
	require.NoError(t, err)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-Dsonar.login=squ_abc -Dsonar.host.url=http://sonar:9000\n", string(args))
}

func TestProperties(t *testing.T) {
	want := "sonar.projectKey=express\n" +
		"sonar.sources=.\n" +
		"sonar.sourceEncoding=UTF-8\n" +
		"sonar.inclusions=**/*.js,**/*.ts\n" +
		"sonar.exclusions=**/test/**/*,**/tests/**/*,**/*test*\n" +
		"sonar.coverage.exclusions=**/*\n" +
		"sonar.cpd.exclusions=**/*"
	assert.Equal(t, want, Properties("express"))
}
