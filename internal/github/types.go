// Package github reads issues from a GitHub repository over the REST API.
//
// Requests authenticate with either a personal access token or a GitHub App
// installation token, are rate limited client-side, and are retried when
// GitHub reports secondary rate limiting.
package github

import (
	"encoding/json"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxPageSize is the largest per_page value GitHub honours.
	MaxPageSize = 100

	// MaxPages stops pagination from running away on a malformed Link header.
	MaxPages = 5000

	apiVersion = "2022-11-28"
)

// Issue states accepted by the list endpoint.
const (
	StateAll    = "all"
	StateOpen   = "open"
	StateClosed = "closed"
)

// Issue is a GitHub issue. The typed fields are the ones the pipeline reads;
// Raw keeps the complete payload so it can be stored as-is.
type Issue struct {
	ID          int64      `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"`

	Raw map[string]any `json:"-"`
}

// PullRef is present when the issues endpoint returns a pull request.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// UnmarshalJSON decodes the typed fields and keeps the full object in Raw.
func (i *Issue) UnmarshalJSON(data []byte) error {
	type plain Issue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Issue(p)
	i.Raw = raw
	return nil
}

// ListOptions filters and orders the issue listing.
type ListOptions struct {
	// State is one of StateAll, StateOpen or StateClosed. Empty means all.
	State string
	// Since restricts the listing to issues updated at or after this time.
	Since *time.Time
	// Sort is "created", "updated" or "comments". Empty uses GitHub's default.
	Sort string
	// Direction is "asc" or "desc".
	Direction string
}

// apiError is the error body returned by the GitHub API.
type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}
