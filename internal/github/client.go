package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Client lists issues of a single repository.
type Client struct {
	Owner      string
	Repo       string
	BaseURL    string
	HTTPClient *http.Client

	tokens  TokenSource
	limiter *rate.Limiter
}

// NewClient creates a client for owner/repo authenticated by tokens.
// A nil TokenSource sends unauthenticated requests.
func NewClient(tokens TokenSource, owner, repo string) *Client {
	return &Client{
		Owner:      owner,
		Repo:       repo,
		BaseURL:    DefaultAPIEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
}

// WithBaseURL returns a copy of the client talking to baseURL.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.BaseURL = baseURL
	return &cp
}

// WithHTTPClient returns a copy of the client using httpClient.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

// WithRateLimit returns a copy of the client limited to r requests per
// second with the given burst. A zero r disables client-side limiting.
func (c *Client) WithRateLimit(r float64, burst int) *Client {
	cp := *c
	if r <= 0 {
		cp.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		cp.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	return &cp
}

func (c *Client) issuesURL(opts ListOptions, page, perPage int) string {
	q := url.Values{}
	state := opts.State
	if state == "" {
		state = StateAll
	}
	q.Set("state", state)
	if opts.Since != nil {
		q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	if opts.Direction != "" {
		q.Set("direction", opts.Direction)
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s/repos/%s/%s/issues?%s", c.BaseURL, c.Owner, c.Repo, q.Encode())
}

// ListIssuesPage fetches one page of the listing. The boolean reports
// whether GitHub advertised a following page.
func (c *Client) ListIssuesPage(ctx context.Context, opts ListOptions, page, perPage int) ([]Issue, bool, error) {
	if perPage <= 0 || perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	body, headers, err := c.doRequest(ctx, http.MethodGet, c.issuesURL(opts, page, perPage))
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch issues page %d: %w", page, err)
	}

	var issues []Issue
	if err := json.Unmarshal(body, &issues); err != nil {
		return nil, false, fmt.Errorf("failed to parse issues response: %w", err)
	}
	_, more := hasNextPage(headers)
	return issues, more, nil
}

// doRequest performs an authenticated GET, retrying when rate limited.
func (c *Client) doRequest(ctx context.Context, method, urlStr string) ([]byte, http.Header, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		if c.tokens != nil {
			token, err := c.tokens.Token(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to obtain GitHub token: %w", err)
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		const maxResponseSize = 50 * 1024 * 1024
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		// GitHub signals rate limiting with 429, or 403 plus an exhausted quota.
		if resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
			delay := RetryDelay * time.Duration(1<<attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			lastErr = fmt.Errorf("rate limited (attempt %d/%d)", attempt+1, MaxRetries+1)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, parseAPIError(resp.StatusCode, respBody)
		}
		return respBody, resp.Header, nil
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded: %w", MaxRetries+1, lastErr)
}

// parseAPIError turns a GitHub error body into an error.
func parseAPIError(statusCode int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("unauthorized: %s (check token validity)", apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("forbidden: %s (check token permissions)", apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (check owner and repository)", apiErr.Message)
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, apiErr.Message)
	}
}
