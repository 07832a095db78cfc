// Package ingest fetches webcompat issues from GitHub, enriches them and
// upserts them into the search index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/webcompat/webcompat-search/internal/github"
	"github.com/webcompat/webcompat-search/internal/index"
)

// DefaultWorkers is the number of issues enriched and indexed concurrently.
const DefaultWorkers = 4

// Iterator yields issues until it returns io.EOF.
type Iterator interface {
	Next(ctx context.Context) (github.Issue, error)
}

// Source lists issues from the tracker.
type Source interface {
	Issues(opts github.ListOptions) Iterator
	IssueRange(start, end int) (Iterator, error)
}

// Store is the subset of the search index the pipeline writes to.
type Store interface {
	EnsureIndex(ctx context.Context, name string) error
	Put(ctx context.Context, index, id string, doc any) error
	Latest(ctx context.Context, index, field string) (index.Hit, error)
}

// GitHubSource adapts a github.Client to Source.
type GitHubSource struct {
	Client *github.Client
}

// Issues implements Source.
func (s GitHubSource) Issues(opts github.ListOptions) Iterator {
	return s.Client.Issues(opts)
}

// IssueRange implements Source.
func (s GitHubSource) IssueRange(start, end int) (Iterator, error) {
	return s.Client.IssueRange(start, end)
}

// Stats summarizes one ingestion run. Stale counts listed copies of an
// issue that were skipped because a newer copy was already stored.
type Stats struct {
	RunID    string
	Fetched  int64
	Indexed  int64
	Failed   int64
	Stale    int64
	Since    *time.Time
	Duration time.Duration
}

// Pipeline runs ingestion into a single issues index.
type Pipeline struct {
	source  Source
	store   Store
	index   string
	workers int
	logger  zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many issues are processed concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a pipeline reading from source and writing to indexName.
func New(source Source, store Store, indexName string, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		store:   store,
		index:   indexName,
		workers: DefaultWorkers,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LastUpdated returns the most recent updated_at across the index. ok is
// false when the index is missing or empty.
func (p *Pipeline) LastUpdated(ctx context.Context) (ts time.Time, ok bool, err error) {
	hit, err := p.store.Latest(ctx, p.index, FieldUpdatedAt)
	if errors.Is(err, index.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last updated issue: %w", err)
	}

	var doc struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := hit.Decode(&doc); err != nil {
		return time.Time{}, false, err
	}
	if doc.UpdatedAt.IsZero() {
		return time.Time{}, false, nil
	}
	return doc.UpdatedAt, true, nil
}

// Fetch ingests issues in state. Only issues updated at or after since are
// requested; when since is nil the index's last updated timestamp is used,
// and when the index is empty every issue is fetched.
func (p *Pipeline) Fetch(ctx context.Context, state string, since *time.Time) (Stats, error) {
	switch state {
	case "":
		state = github.StateAll
	case github.StateAll, github.StateOpen, github.StateClosed:
	default:
		return Stats{}, fmt.Errorf("invalid state %q (must be all, open or closed)", state)
	}

	if since == nil {
		ts, ok, err := p.LastUpdated(ctx)
		if err != nil {
			return Stats{}, err
		}
		if ok {
			since = &ts
		}
	}

	it := p.source.Issues(github.ListOptions{State: state, Since: since})
	stats, err := p.run(ctx, it)
	stats.Since = since
	return stats, err
}

// FetchRange ingests positions [start, end) of the issue listing ordered by
// last update, oldest first.
func (p *Pipeline) FetchRange(ctx context.Context, start, end int) (Stats, error) {
	it, err := p.source.IssueRange(start, end)
	if err != nil {
		return Stats{}, err
	}
	return p.run(ctx, it)
}

// run drains it through the worker pool. A failure on one issue is logged
// and counted; only failures to list issues or prepare the index end the
// run early.
func (p *Pipeline) run(ctx context.Context, it Iterator) (Stats, error) {
	started := time.Now()
	stats := Stats{RunID: uuid.NewString()}
	logger := p.logger.With().Str("run_id", stats.RunID).Str("index", p.index).Logger()

	if err := p.store.EnsureIndex(ctx, p.index); err != nil {
		return stats, err
	}

	var indexed, failed, stale atomic.Int64
	versions := newIssueVersions()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var listErr error
	for {
		issue, err := it.Next(gctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			listErr = fmt.Errorf("failed to list issues: %w", err)
			break
		}
		stats.Fetched++

		g.Go(func() error {
			err := p.ingest(gctx, versions, issue, logger)
			if errors.Is(err, errStale) {
				stale.Add(1)
				logger.Debug().Int("issue", issue.Number).Time("updated_at", issue.UpdatedAt).Msg("Skipping stale copy of issue")
				return nil
			}
			if err != nil {
				failed.Add(1)
				logger.Error().Err(err).Int("issue", issue.Number).Msg("Failed to ingest issue")
				return nil
			}
			indexed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats.Indexed = indexed.Load()
	stats.Failed = failed.Load()
	stats.Stale = stale.Load()
	stats.Duration = time.Since(started)

	event := logger.Info()
	if listErr != nil {
		event = logger.Error().Err(listErr)
	}
	event.
		Int64("fetched", stats.Fetched).
		Int64("indexed", stats.Indexed).
		Int64("failed", stats.Failed).
		Int64("stale", stats.Stale).
		Dur("duration", stats.Duration).
		Msg("Ingestion finished")

	return stats, listErr
}

var errStale = errors.New("a newer copy of the issue was already stored")

// issueVersions serializes writes per issue number within a run and
// remembers the updated_at of the copy stored last. An issue updated while
// the listing is paged can be listed twice; the older copy must not win.
type issueVersions struct {
	mu       sync.Mutex
	byNumber map[int]*issueVersion
}

type issueVersion struct {
	mu        sync.Mutex
	stored    bool
	updatedAt time.Time
}

func newIssueVersions() *issueVersions {
	return &issueVersions{byNumber: make(map[int]*issueVersion)}
}

func (v *issueVersions) get(number int) *issueVersion {
	v.mu.Lock()
	defer v.mu.Unlock()
	iv, ok := v.byNumber[number]
	if !ok {
		iv = &issueVersion{}
		v.byNumber[number] = iv
	}
	return iv
}

func (p *Pipeline) ingest(ctx context.Context, versions *issueVersions, issue github.Issue, logger zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while enriching issue: %v", r)
		}
	}()

	iv := versions.get(issue.Number)
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.stored && issue.UpdatedAt.Before(iv.updatedAt) {
		return errStale
	}

	logger.Debug().Int("issue", issue.Number).Msg("Fetching issue")
	doc := Enrich(issue, logger)
	if err := p.store.Put(ctx, p.index, DocumentID(issue), doc); err != nil {
		return err
	}
	iv.stored = true
	iv.updatedAt = issue.UpdatedAt
	return nil
}
