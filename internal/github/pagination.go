package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// IssueIterator walks an issue listing one page at a time. Next returns
// io.EOF once the listing (or the requested window of it) is exhausted.
// An iterator is consumed once; to resume after a failure, start a new one
// over the remaining range.
type IssueIterator struct {
	client  *Client
	opts    ListOptions
	perPage int

	page      int
	buf       []Issue
	pos       int
	skip      int
	remaining int // negative means unbounded
	lastPage  bool
}

// Issues returns an iterator over every issue matching opts.
func (c *Client) Issues(opts ListOptions) *IssueIterator {
	return &IssueIterator{
		client:    c,
		opts:      opts,
		perPage:   MaxPageSize,
		page:      1,
		remaining: -1,
	}
}

// IssueRange returns an iterator over the half-open window [start, end) of
// the listing ordered by last update, oldest first. Only the pages that
// cover the window are requested.
func (c *Client) IssueRange(start, end int) (*IssueIterator, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	}
	return &IssueIterator{
		client: c,
		opts: ListOptions{
			State:     StateAll,
			Sort:      "updated",
			Direction: "asc",
		},
		perPage:   MaxPageSize,
		page:      start/MaxPageSize + 1,
		skip:      start % MaxPageSize,
		remaining: end - start,
	}, nil
}

// Next returns the next issue.
func (it *IssueIterator) Next(ctx context.Context) (Issue, error) {
	if it.remaining == 0 {
		return Issue{}, io.EOF
	}
	for it.pos >= len(it.buf) {
		if it.lastPage {
			return Issue{}, io.EOF
		}
		if it.page > MaxPages {
			return Issue{}, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		issues, more, err := it.client.ListIssuesPage(ctx, it.opts, it.page, it.perPage)
		if err != nil {
			return Issue{}, err
		}
		it.page++
		it.lastPage = !more
		it.buf = issues
		it.pos = 0
		if it.skip > 0 {
			n := min(it.skip, len(it.buf))
			it.pos = n
			it.skip -= n
		}
	}

	issue := it.buf[it.pos]
	it.pos++
	if it.remaining > 0 {
		it.remaining--
	}
	return issue, nil
}
