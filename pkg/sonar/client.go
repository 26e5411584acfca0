// Package sonar drives a SonarQube server: project reset, scanner runs,
// readiness polling and paginated issue retrieval.
package sonar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/panbanda/smelltrend/pkg/models"
)

const (
	deletePath   = "/api/projects/delete"
	activityPath = "/api/ce/activity_status"
	issuesPath   = "/api/issues/search"
)

// Issue filters sent with every search.
const (
	SearchLanguages = "js,ts"
	SearchTypes     = models.IssueTypeBug + "," + models.IssueTypeCodeSmell
	SearchStatuses  = "OPEN,REOPENED,CONFIRMED"
)

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// ActivityStatus is the server's background task queue for a component.
type ActivityStatus struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Failing    int `json:"failing"`
}

// Idle reports whether the queue has drained.
func (s ActivityStatus) Idle() bool {
	return s.Pending == 0 && s.InProgress == 0 && s.Failing == 0
}

// Paging describes one page of search results.
type Paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// IssuePage is one page of /api/issues/search.
type IssuePage struct {
	Paging Paging            `json:"paging"`
	Issues []models.RawIssue `json:"issues"`
}

// Client talks to the SonarQube web API.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBasicAuth authenticates with a username and password.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithToken authenticates with a user token, which the server accepts as a
// basic-auth username with an empty password.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		if token != "" && c.username == "" {
			c.username = token
			c.password = ""
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeleteProject removes a project and its analyses. A missing project is not an error.
func (c *Client) DeleteProject(ctx context.Context, key string) error {
	err := c.do(ctx, http.MethodPost, deletePath, url.Values{"project": {key}}, nil)
	var herr *HTTPError
	if errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// ActivityStatus returns the background task counters of a project.
func (c *Client) ActivityStatus(ctx context.Context, key string) (ActivityStatus, error) {
	var status ActivityStatus
	err := c.do(ctx, http.MethodGet, activityPath, url.Values{"component": {key}}, &status)
	return status, err
}

// SearchIssues fetches one page (1-based) of open bugs and code smells.
func (c *Client) SearchIssues(ctx context.Context, key string, page, pageSize int) (*IssuePage, error) {
	params := url.Values{
		"componentKeys": {key},
		"languages":     {SearchLanguages},
		"types":         {SearchTypes},
		"statuses":      {SearchStatuses},
		"p":             {strconv.Itoa(page)},
		"ps":            {strconv.Itoa(pageSize)},
	}
	var result IssuePage
	if err := c.do(ctx, http.MethodGet, issuesPath, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{StatusCode: resp.StatusCode, URL: c.baseURL + path, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
