package dashboard

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/webcompat/webcompat-search/internal/index"
)

// HitIterator yields index hits until io.EOF.
type HitIterator interface {
	Next(ctx context.Context) (index.Hit, error)
}

// issueDoc is the part of an indexed issue the reports read.
type issueDoc struct {
	Number       int        `json:"number"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	ValidDomains []string   `json:"valid_domains"`
}

// issueTally keeps running counters over the scanned issues instead of the
// documents themselves.
type issueTally struct {
	since30 time.Time

	hostByNumber map[int]string
	open         map[string]int
	last30       map[string]int
	scanned      int
	skipped      int
}

func newIssueTally(now time.Time) *issueTally {
	return &issueTally{
		since30:      now.AddDate(0, 0, -30),
		hostByNumber: make(map[int]string),
		open:         make(map[string]int),
		last30:       make(map[string]int),
	}
}

func (t *issueTally) add(doc issueDoc) {
	t.scanned++
	host := primaryHostname(doc.ValidDomains)
	t.hostByNumber[doc.Number] = host
	if !countable(host) {
		return
	}
	if doc.State == "open" {
		t.open[host]++
	}
	if !doc.CreatedAt.IsZero() && !doc.CreatedAt.Before(t.since30) {
		t.last30[host]++
	}
}

// tallyIssues drains it. Documents that cannot be decoded are logged and
// skipped; a failed page read ends the scan with an error.
func tallyIssues(ctx context.Context, it HitIterator, now time.Time, logger zerolog.Logger) (*issueTally, error) {
	t := newIssueTally(now)
	for {
		hit, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, err
		}
		var doc issueDoc
		if err := hit.Decode(&doc); err != nil {
			t.skipped++
			logger.Warn().Err(err).Str("id", hit.ID).Msg("Skipping malformed issue document")
			continue
		}
		t.add(doc)
	}
}
