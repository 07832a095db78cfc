// Package index stores and queries documents in Elasticsearch.
//
// Store wraps the official client with the handful of operations the
// ingestion and reporting jobs need: create-if-missing, upsert by id,
// top-1 sorted lookup, scroll scans, delete-by-query, term queries and
// cluster health. Scroll pages are retried with exponential backoff so a
// single failed page read does not abort a long scan.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

const (
	// DefaultScroll is how long Elasticsearch keeps a scroll context alive
	// between page reads.
	DefaultScroll = 5 * time.Minute

	// DefaultPageSize is the number of hits fetched per scroll page.
	DefaultPageSize = 500

	// scrollMaxElapsed bounds retrying a single scroll page.
	scrollMaxElapsed = 2 * time.Minute
)

// ErrNotFound is matched by errors for missing indices or documents.
var ErrNotFound = errors.New("not found")

// Config holds connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Scroll   time.Duration
	PageSize int
	Timeout  time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Store is an Elasticsearch-backed document store.
type Store struct {
	es       *elasticsearch.Client
	logger   zerolog.Logger
	scroll   time.Duration
	pageSize int
	timeout  time.Duration

	newBackOff func() backoff.BackOff
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for retry and scan diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithBackOff sets the retry policy for scroll page reads. The function
// must return a fresh BackOff on every call since BackOffs are stateful.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Store) {
		s.newBackOff = f
	}
}

// New connects a Store to the cluster at cfg.URL. No request is made until
// the first operation.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elasticsearch url is required")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	s := &Store{
		es:       es,
		logger:   zerolog.Nop(),
		scroll:   cfg.Scroll,
		pageSize: cfg.PageSize,
		timeout:  cfg.Timeout,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = scrollMaxElapsed
			return bo
		},
	}
	if s.scroll <= 0 {
		s.scroll = DefaultScroll
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hit is a single search result.
type Hit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// Decode unmarshals the hit's source document into v.
func (h Hit) Decode(v any) error {
	if err := json.Unmarshal(h.Source, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", h.ID, err)
	}
	return nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// ResponseError is an error document returned by Elasticsearch.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch error (status %d)", e.Status)
	}
	return fmt.Sprintf("elasticsearch error (status %d): %s: %s", e.Status, e.Type, e.Reason)
}

// Is reports 404 responses as ErrNotFound.
func (e *ResponseError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// decodeResponse closes res and decodes its body into out, turning error
// responses into *ResponseError.
func decodeResponse(res *esapi.Response, out any) error {
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var body struct {
			Error json.RawMessage `json:"error"`
		}
		e := &ResponseError{Status: res.StatusCode}
		data, _ := io.ReadAll(res.Body)
		if json.Unmarshal(data, &body) == nil && len(body.Error) > 0 {
			var detail struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			}
			if json.Unmarshal(body.Error, &detail) == nil {
				e.Type, e.Reason = detail.Type, detail.Reason
			} else {
				// Older clusters return the error as a plain string.
				_ = json.Unmarshal(body.Error, &e.Reason)
			}
		}
		return e
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse elasticsearch response: %w", err)
	}
	return nil
}

func encodeBody(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return &buf, nil
}

// withTimeout applies the configured per-call deadline.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureIndex creates the index, treating "already exists" as success.
func (s *Store) EnsureIndex(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.es.Indices.Create(name, s.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	err = decodeResponse(res, nil)
	var rerr *ResponseError
	if errors.As(err, &rerr) && rerr.Type == "resource_already_exists_exception" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	s.logger.Info().Str("index", name).Msg("Created index")
	return nil
}

// Put writes doc under id, replacing any existing document with that id.
func (s *Store) Put(ctx context.Context, index, id string, doc any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, err := encodeBody(doc)
	if err != nil {
		return err
	}
	res, err := s.es.Index(index, body,
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %s/%s: %w", index, id, err)
	}
	if err := decodeResponse(res, nil); err != nil {
		return fmt.Errorf("failed to index document %s/%s: %w", index, id, err)
	}
	return nil
}

// Add writes doc with an id generated by Elasticsearch.
func (s *Store) Add(ctx context.Context, index string, doc any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, err := encodeBody(doc)
	if err != nil {
		return err
	}
	res, err := s.es.Index(index, body, s.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to add document to %s: %w", index, err)
	}
	if err := decodeResponse(res, nil); err != nil {
		return fmt.Errorf("failed to add document to %s: %w", index, err)
	}
	return nil
}

// Latest returns the document with the greatest value of the date field, or
// ErrNotFound when the index is missing or empty. An index created before
// any document was written has no mapping for field; the sort treats it as
// a date so such an index reads as empty instead of failing.
func (s *Store) Latest(ctx context.Context, index, field string) (Hit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, err := encodeBody(map[string]any{
		"sort": []any{map[string]any{field: map[string]string{"order": "desc", "unmapped_type": "date"}}},
		"size": 1,
	})
	if err != nil {
		return Hit{}, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(body),
	)
	if err != nil {
		return Hit{}, fmt.Errorf("failed to search %s: %w", index, err)
	}
	var out searchResponse
	if err := decodeResponse(res, &out); err != nil {
		return Hit{}, fmt.Errorf("failed to search %s: %w", index, err)
	}
	if len(out.Hits.Hits) == 0 {
		return Hit{}, fmt.Errorf("index %s is empty: %w", index, ErrNotFound)
	}
	return out.Hits.Hits[0], nil
}

// DeleteAll removes every document from index and returns how many were
// deleted. The index itself is kept.
func (s *Store) DeleteAll(ctx context.Context, index string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, err := encodeBody(map[string]any{"query": map[string]any{"match_all": map[string]any{}}})
	if err != nil {
		return 0, err
	}
	res, err := s.es.DeleteByQuery([]string{index}, body,
		s.es.DeleteByQuery.WithContext(ctx),
		s.es.DeleteByQuery.WithConflicts("proceed"),
		s.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear index %s: %w", index, err)
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := decodeResponse(res, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to clear index %s: %w", index, err)
	}
	return out.Deleted, nil
}

// Term returns up to size documents whose field exactly equals value.
func (s *Store) Term(ctx context.Context, index, field, value string, size int) ([]Hit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, err := encodeBody(map[string]any{
		"query": map[string]any{"term": map[string]any{field: value}},
	})
	if err != nil {
		return nil, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(body),
		s.es.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", index, err)
	}
	var out searchResponse
	if err := decodeResponse(res, &out); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", index, err)
	}
	return out.Hits.Hits, nil
}

// Health is the cluster health summary.
type Health struct {
	ClusterName   string `json:"cluster_name"`
	Status        string `json:"status"`
	NumberOfNodes int    `json:"number_of_nodes"`
	ActiveShards  int    `json:"active_shards"`
}

// Green reports whether every shard is allocated.
func (h Health) Green() bool {
	return strings.EqualFold(h.Status, "green")
}

// Health fetches cluster health.
func (s *Store) Health(ctx context.Context) (Health, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.es.Cluster.Health(s.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return Health{}, fmt.Errorf("failed to fetch cluster health: %w", err)
	}
	var h Health
	if err := decodeResponse(res, &h); err != nil {
		return Health{}, fmt.Errorf("failed to fetch cluster health: %w", err)
	}
	return h, nil
}
