package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scanner streams every document matching a query using the scroll API.
// Next returns io.EOF after the last hit. Call Close to release the scroll
// context on the cluster.
type Scanner struct {
	store *Store
	index string
	query map[string]any

	scrollID string
	buf      []Hit
	pos      int
	started  bool
	done     bool
	pages    int
}

// Scan starts a scroll over index. A nil query matches all documents.
func (s *Store) Scan(index string, query map[string]any) *Scanner {
	if query == nil {
		query = map[string]any{"match_all": map[string]any{}}
	}
	return &Scanner{store: s, index: index, query: query}
}

// Next returns the next hit.
func (sc *Scanner) Next(ctx context.Context) (Hit, error) {
	for sc.pos >= len(sc.buf) {
		if sc.done {
			return Hit{}, io.EOF
		}
		if err := sc.fetch(ctx); err != nil {
			return Hit{}, err
		}
	}
	hit := sc.buf[sc.pos]
	sc.pos++
	return hit, nil
}

// Pages returns how many pages have been read so far.
func (sc *Scanner) Pages() int {
	return sc.pages
}

// Close clears the scroll context. It is safe to call more than once.
func (sc *Scanner) Close(ctx context.Context) error {
	if sc.scrollID == "" {
		return nil
	}
	id := sc.scrollID
	sc.scrollID = ""
	sc.done = true

	s := sc.store
	body, err := encodeBody(map[string]any{"scroll_id": []string{id}})
	if err != nil {
		return err
	}
	res, err := s.es.ClearScroll(
		s.es.ClearScroll.WithContext(ctx),
		s.es.ClearScroll.WithBody(body),
	)
	if err != nil {
		return fmt.Errorf("failed to clear scroll: %w", err)
	}
	if err := decodeResponse(res, nil); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to clear scroll: %w", err)
	}
	return nil
}

// fetch reads the next page, retrying transient failures. A page that
// cannot be read once the retry budget is spent fails the scan.
func (sc *Scanner) fetch(ctx context.Context) error {
	var page searchResponse
	attempt := 0
	op := func() error {
		attempt++
		var err error
		page, err = sc.readPage(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		sc.store.logger.Warn().
			Err(err).
			Str("index", sc.index).
			Int("page", sc.pages+1).
			Int("attempt", attempt).
			Msg("Scroll page read failed, retrying")
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(sc.store.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("failed to read page %d of %s: %w", sc.pages+1, sc.index, err)
	}

	sc.started = true
	sc.pages++
	if page.ScrollID != "" {
		sc.scrollID = page.ScrollID
	}
	sc.buf = page.Hits.Hits
	sc.pos = 0
	if len(sc.buf) == 0 {
		sc.done = true
		// Release the server-side context as soon as the scan completes.
		_ = sc.Close(ctx)
	}
	return nil
}

func (sc *Scanner) readPage(ctx context.Context) (searchResponse, error) {
	s := sc.store
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out searchResponse
	if !sc.started {
		body, err := encodeBody(map[string]any{"query": sc.query})
		if err != nil {
			return out, err
		}
		res, err := s.es.Search(
			s.es.Search.WithContext(ctx),
			s.es.Search.WithIndex(sc.index),
			s.es.Search.WithBody(body),
			s.es.Search.WithSize(s.pageSize),
			s.es.Search.WithScroll(s.scroll),
			s.es.Search.WithSort("_doc"),
		)
		if err != nil {
			return out, err
		}
		return out, decodeResponse(res, &out)
	}

	body, err := encodeBody(map[string]any{
		"scroll_id": sc.scrollID,
		"scroll":    fmt.Sprintf("%ds", int(s.scroll.Seconds())),
	})
	if err != nil {
		return out, err
	}
	res, err := s.es.Scroll(
		s.es.Scroll.WithContext(ctx),
		s.es.Scroll.WithBody(body),
	)
	if err != nil {
		return out, err
	}
	return out, decodeResponse(res, &out)
}

// retryable reports whether a failed page read may succeed on retry:
// transport failures and server-side errors are, client errors are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return rerr.Status >= http.StatusInternalServerError || rerr.Status == http.StatusTooManyRequests
	}
	return true
}

// ConstantRetry retries up to n times with a fixed delay.
func ConstantRetry(delay time.Duration, n uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), n)
	}
}
