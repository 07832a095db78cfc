package bugzilla

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// bugFields are requested on every search so callers get a uniform Bug.
var bugFields = []string{
	"id",
	"summary",
	"product",
	"component",
	"status",
	"resolution",
	"whiteboard",
	"keywords",
	"creation_time",
	"last_change_time",
	"cf_last_resolved",
	"see_also",
}

// Client talks to a Bugzilla REST endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	limiter *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey authenticates requests with a Bugzilla API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.APIKey = key
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

// WithRateLimit limits outgoing requests to perSecond. Zero disables it.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient returns a client for the Bugzilla at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs an advanced search and returns every matching bug.
// params are passed through verbatim; limit and include_fields are added.
func (c *Client) Search(ctx context.Context, params url.Values) ([]Bug, error) {
	q := cloneValues(params)
	q.Set("limit", "0")
	q.Set("include_fields", strings.Join(bugFields, ","))

	var resp searchResponse
	if err := c.get(ctx, "/rest/bug", q, &resp); err != nil {
		return nil, err
	}
	return resp.Bugs, nil
}

// Count returns how many bugs match params without transferring them.
func (c *Client) Count(ctx context.Context, params url.Values) (int, error) {
	q := cloneValues(params)
	q.Set("count_only", "1")

	var resp searchResponse
	if err := c.get(ctx, "/rest/bug", q, &resp); err != nil {
		return 0, err
	}
	if resp.BugCount == nil {
		return 0, fmt.Errorf("bugzilla response has no bug_count")
	}
	return *resp.BugCount, nil
}

// SeeAlsoMatching returns bugs whose see_also field matches the regular
// expression pattern.
func (c *Client) SeeAlsoMatching(ctx context.Context, pattern string) ([]Bug, error) {
	bugs, err := c.Search(ctx, url.Values{
		"f1": {"see_also"},
		"o1": {"regexp"},
		"v1": {pattern},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch see_also bugs: %w", err)
	}
	return bugs, nil
}

// WhiteboardContaining returns bugs whose status whiteboard contains substr.
func (c *Client) WhiteboardContaining(ctx context.Context, substr string) ([]Bug, error) {
	bugs, err := c.Search(ctx, url.Values{
		"status_whiteboard_type": {"substring"},
		"status_whiteboard":      {substr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch whiteboard bugs: %w", err)
	}
	return bugs, nil
}

// BuglistURL builds a link to the HTML bug list for params.
func (c *Client) BuglistURL(params url.Values) string {
	return BuglistURL(c.BaseURL, params)
}

// BuglistURL builds a buglist.cgi link on the Bugzilla at baseURL.
func BuglistURL(baseURL string, params url.Values) string {
	return strings.TrimRight(baseURL, "/") + "/buglist.cgi?" + params.Encode()
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-BUGZILLA-API-KEY", c.APIKey)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("bugzilla request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read bugzilla response after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return fmt.Errorf("bugzilla error %d (status %d): %s", e.Code, resp.StatusCode, e.Message)
		}
		return fmt.Errorf("bugzilla API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse bugzilla response: %w", err)
	}
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
