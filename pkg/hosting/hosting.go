// Package hosting collects repository metadata from GitHub.
package hosting

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"

	"github.com/panbanda/smelltrend/internal/cache"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/models"
)

// PerPage is the page size of list endpoints.
const PerPage = 100

// GitHub language names of the studied languages.
const (
	LanguageJavaScript = "JavaScript"
	LanguageTypeScript = "TypeScript"
)

// RepoStats is the metadata of one repository.
type RepoStats struct {
	Project      models.Project `json:"project"`
	CreatedAt    time.Time      `json:"created_at"`
	Stars        int            `json:"stargazers_count"`
	Forks        int            `json:"forks_count"`
	Watchers     int            `json:"watchers_count"`
	OpenIssues   int            `json:"open_issues_count"`
	Commits      int            `json:"commits_count"`
	Contributors int            `json:"contributors_count"`
	Releases     int            `json:"releases_count"`
	Tags         int            `json:"tags_count"`
	Languages    map[string]int `json:"languages"` // bytes per language
}

// LanguageRatio returns the share of bytes written in lang, 0 when unknown.
func (s RepoStats) LanguageRatio(lang string) float64 {
	total := 0
	for _, n := range s.Languages {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.Languages[lang]) / float64(total)
}

// Client fetches repository metadata.
type Client struct {
	gh         *github.Client
	cache      *cache.Cache
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables fetch-and-cache in Stats.
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) {
		cl.cache = c
	}
}

// WithRetries sets how often a failed page is retried and the pause between attempts.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if raw == "" {
			return
		}
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		if u, err := url.Parse(raw); err == nil {
			c.gh.BaseURL = u
		}
	}
}

// NewClient creates a client authenticated with a bearer token. An empty token
// makes unauthenticated requests.
func NewClient(token string, opts ...Option) *Client {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	c := &Client{
		gh:         gh,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client with a stats cache under the data root.
func NewClientFromConfig(cfg *config.Config, statsDir string, opts ...Option) (*Client, error) {
	c, err := cache.New(statsDir, time.Duration(cfg.GitHub.CacheTTL)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("open stats cache: %w", err)
	}
	all := append([]Option{
		WithBaseURL(cfg.GitHub.APIURL),
		WithRetries(cfg.GitHub.MaxRetries, -1),
		WithCache(c),
	}, opts...)
	return NewClient(cfg.GitHub.Token, all...), nil
}

// Stats returns cached metadata, fetching and caching it on a miss.
func (c *Client) Stats(ctx context.Context, p models.Project) (*RepoStats, error) {
	key := p.Slug()
	if c.cache != nil {
		var cached RepoStats
		ok, err := c.cache.GetJSON(key, &cached)
		if err != nil {
			c.logger.Warn("ignoring unreadable stats cache entry", "project", p.Name, "error", err)
		}
		if ok {
			c.logger.Debug("stats cache hit", "project", p.Name)
			return &cached, nil
		}
	}

	stats, err := c.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.SetJSON(key, stats); err != nil {
			return nil, fmt.Errorf("cache stats for %s: %w", key, err)
		}
	}
	return stats, nil
}

// Refresh drops the cached entry of p and fetches it again. A failed fetch
// leaves no entry behind.
func (c *Client) Refresh(ctx context.Context, p models.Project) (*RepoStats, error) {
	if c.cache != nil {
		if err := c.cache.Invalidate(p.Slug()); err != nil {
			return nil, fmt.Errorf("invalidate stats for %s: %w", p.Slug(), err)
		}
	}
	return c.Stats(ctx, p)
}

// ClearCache drops every cached entry.
func (c *Client) ClearCache() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear()
}

// CacheStats summarizes the stats cache. It returns nil without a cache.
func (c *Client) CacheStats() (*cache.Stats, error) {
	if c.cache == nil {
		return nil, nil
	}
	return c.cache.GetStats()
}

// Fetch queries the API for the repository's metadata and list counts.
func (c *Client) Fetch(ctx context.Context, p models.Project) (*RepoStats, error) {
	logger := c.logger.With("project", p.Name)
	logger.Info("fetching repository info")

	repo, _, err := c.gh.Repositories.Get(ctx, p.Owner, p.Name)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", p.Slug(), err)
	}

	stats := &RepoStats{
		Project:    p,
		CreatedAt:  repo.GetCreatedAt().Time,
		Stars:      repo.GetStargazersCount(),
		Forks:      repo.GetForksCount(),
		Watchers:   repo.GetWatchersCount(),
		OpenIssues: repo.GetOpenIssuesCount(),
	}

	counts := []struct {
		name string
		dst  *int
		list func(opts github.ListOptions) (int, *github.Response, error)
	}{
		{"commits", &stats.Commits, func(opts github.ListOptions) (int, *github.Response, error) {
			items, resp, err := c.gh.Repositories.ListCommits(ctx, p.Owner, p.Name, &github.CommitsListOptions{ListOptions: opts})
			return len(items), resp, err
		}},
		{"contributors", &stats.Contributors, func(opts github.ListOptions) (int, *github.Response, error) {
			items, resp, err := c.gh.Repositories.ListContributors(ctx, p.Owner, p.Name, &github.ListContributorsOptions{ListOptions: opts})
			return len(items), resp, err
		}},
		{"releases", &stats.Releases, func(opts github.ListOptions) (int, *github.Response, error) {
			items, resp, err := c.gh.Repositories.ListReleases(ctx, p.Owner, p.Name, &opts)
			return len(items), resp, err
		}},
		{"tags", &stats.Tags, func(opts github.ListOptions) (int, *github.Response, error) {
			items, resp, err := c.gh.Repositories.ListTags(ctx, p.Owner, p.Name, &opts)
			return len(items), resp, err
		}},
	}
	for _, cnt := range counts {
		n, err := c.count(ctx, logger.With("list", cnt.name), cnt.list)
		if err != nil {
			return nil, fmt.Errorf("count %s of %s: %w", cnt.name, p.Slug(), err)
		}
		*cnt.dst = n
	}

	langs, _, err := c.gh.Repositories.ListLanguages(ctx, p.Owner, p.Name)
	if err != nil {
		return nil, fmt.Errorf("list languages of %s: %w", p.Slug(), err)
	}
	stats.Languages = langs
	return stats, nil
}

// count walks every page of a list endpoint, retrying each failed page.
func (c *Client) count(ctx context.Context, logger *slog.Logger, list func(github.ListOptions) (int, *github.Response, error)) (int, error) {
	total := 0
	page := 1
	for page != 0 {
		var (
			n    int
			resp *github.Response
			err  error
		)
		for attempt := 0; ; attempt++ {
			n, resp, err = list(github.ListOptions{Page: page, PerPage: PerPage})
			if err == nil || ctx.Err() != nil || attempt >= c.maxRetries {
				break
			}
			logger.Warn("page request failed, retrying", "page", page, "attempt", attempt+1, "error", err)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return 0, err
			}
		}
		if err != nil {
			return 0, fmt.Errorf("page %d: %w", page, err)
		}

		total += n
		last := "?"
		if resp.LastPage != 0 {
			last = fmt.Sprint(resp.LastPage)
		}
		logger.Debug("fetched page", "page", page, "of", last)
		page = resp.NextPage
	}
	return total, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
