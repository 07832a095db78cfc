// Package dashboard computes the webcompat dashboard reports: the most
// reported hosts, Bugzilla bugs with the most webcompat duplicates, and
// per-partner open bug counts over time. Reports are rebuilt from scratch
// on every run and replace the previous contents of their indices.
package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/webcompat/webcompat-search/internal/bugzilla"
	"github.com/webcompat/webcompat-search/internal/fixtures"
)

const (
	topHostsLimit   = 10
	topDupedLimit   = 10
	summaryDocument = "latest"
)

// BugSource queries Bugzilla.
type BugSource interface {
	SeeAlsoMatching(ctx context.Context, pattern string) ([]bugzilla.Bug, error)
	WhiteboardContaining(ctx context.Context, substr string) ([]bugzilla.Bug, error)
	BuglistURL(params url.Values) string
}

// Store is the subset of the search index the reports write to.
type Store interface {
	DeleteAll(ctx context.Context, index string) (int, error)
	Put(ctx context.Context, index, id string, doc any) error
	Add(ctx context.Context, index string, doc any) error
}

// Indices names the report indices.
type Indices struct {
	Duped      string
	Regression string
	Summary    string
}

// Report is the complete dashboard document.
type Report struct {
	RunID       string                   `json:"run_id"`
	LastUpdated time.Time                `json:"last_updated"`
	Open        RankedCounts             `json:"open"`
	Last30      RankedCounts             `json:"last30"`
	Bugzilla    []DupedBug               `json:"bugzilla"`
	ByPartner   map[string]PartnerReport `json:"by_partner"`
	DatesX      []string                 `json:"dates_x"`
}

// Assembler builds and publishes reports.
type Assembler struct {
	bugs     BugSource
	store    Store
	indices  Indices
	ranks    *fixtures.Ranks
	partners []PartnerSpec
	now      func() time.Time
	logger   zerolog.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithClock overrides the current time, mainly for tests.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		a.now = now
	}
}

// WithLogger sets the assembler logger.
func WithLogger(l zerolog.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = l
	}
}

// NewAssembler creates an Assembler.
func NewAssembler(bugs BugSource, store Store, indices Indices, ranks *fixtures.Ranks, partners []PartnerSpec, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		bugs:     bugs,
		store:    store,
		indices:  indices,
		ranks:    ranks,
		partners: partners,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build scans every issue from issues and queries Bugzilla, concurrently,
// then computes the report. Any failed source fails the build.
func (a *Assembler) Build(ctx context.Context, issues HitIterator) (*Report, error) {
	now := a.now()
	runID := uuid.NewString()
	logger := a.logger.With().Str("run_id", runID).Logger()

	var (
		tally       *issueTally
		seeAlsoBugs []bugzilla.Bug
		partnerBugs []bugzilla.Bug
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tally, err = tallyIssues(gctx, issues, now, logger)
		if err != nil {
			return fmt.Errorf("failed to scan issues: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		seeAlsoBugs, err = a.bugs.SeeAlsoMatching(gctx, SeeAlsoPattern)
		return err
	})
	g.Go(func() error {
		var err error
		partnerBugs, err = a.bugs.WhiteboardContaining(gctx, PartnerWhiteboard)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info().
		Int("issues", tally.scanned).
		Int("skipped", tally.skipped).
		Int("see_also_bugs", len(seeAlsoBugs)).
		Int("partner_bugs", len(partnerBugs)).
		Msg("Loaded report sources")

	dates := DateAxis(SeriesStart, now)
	report := &Report{
		RunID:       runID,
		LastUpdated: now,
		Open:        AnnotateRankings(topHosts(tally.open, topHostsLimit), a.ranks),
		Last30:      AnnotateRankings(topHosts(tally.last30, topHostsLimit), a.ranks),
		Bugzilla:    DuplicateClusters(seeAlsoBugs, tally.hostByNumber, a.ranks, topDupedLimit),
		ByPartner:   make(map[string]PartnerReport),
		DatesX:      make([]string, len(dates)),
	}
	for i, d := range dates {
		report.DatesX[i] = d.Format(time.DateOnly)
	}

	byPartner := Classify(partnerBugs, a.partners)
	for _, spec := range a.partners {
		bugs, ok := byPartner[spec.Name]
		if !ok {
			continue
		}
		report.ByPartner[spec.Name] = Summarize(spec, bugs, dates, a.bugs.BuglistURL)
	}
	return report, nil
}

// Publish replaces the contents of the report indices with r. Runs must not
// overlap: each index is cleared before it is refilled.
func (a *Assembler) Publish(ctx context.Context, r *Report) error {
	if _, err := a.store.DeleteAll(ctx, a.indices.Duped); err != nil {
		return err
	}
	for _, bug := range r.Bugzilla {
		if err := a.store.Put(ctx, a.indices.Duped, strconv.Itoa(bug.ID), bug); err != nil {
			return err
		}
	}

	if _, err := a.store.DeleteAll(ctx, a.indices.Regression); err != nil {
		return err
	}
	regressions := 0
	for _, spec := range a.partners {
		pr, ok := r.ByPartner[spec.Name]
		if !ok {
			continue
		}
		for _, bug := range pr.RegressionBugs {
			bug.Partner = spec.Name
			if err := a.store.Add(ctx, a.indices.Regression, bug); err != nil {
				return err
			}
			regressions++
		}
	}

	if _, err := a.store.DeleteAll(ctx, a.indices.Summary); err != nil {
		return err
	}
	if err := a.store.Put(ctx, a.indices.Summary, summaryDocument, r.indexDocument(a.partners)); err != nil {
		return err
	}

	a.logger.Info().
		Str("run_id", r.RunID).
		Int("duped", len(r.Bugzilla)).
		Int("regressions", regressions).
		Int("partners", len(r.ByPartner)).
		Msg("Published dashboard report")
	return nil
}

// partnerEntry is a PartnerSummary tagged with its partner.
type partnerEntry struct {
	Partner string `json:"partner"`
	PartnerSummary
}

// summaryDoc is the report as stored in the search index. Hostnames and
// partner sites contain dots, which Elasticsearch would expand into nested
// objects if they were used as field names, so mappings become lists.
type summaryDoc struct {
	RunID       string         `json:"run_id"`
	LastUpdated time.Time      `json:"last_updated"`
	Open        []HostCount    `json:"open"`
	Last30      []HostCount    `json:"last30"`
	Partners    []partnerEntry `json:"partners"`
	DatesX      []string       `json:"dates_x"`
}

func (r *Report) indexDocument(specs []PartnerSpec) summaryDoc {
	doc := summaryDoc{
		RunID:       r.RunID,
		LastUpdated: r.LastUpdated,
		Open:        r.Open,
		Last30:      r.Last30,
		Partners:    []partnerEntry{},
		DatesX:      r.DatesX,
	}
	for _, spec := range specs {
		if pr, ok := r.ByPartner[spec.Name]; ok {
			doc.Partners = append(doc.Partners, partnerEntry{Partner: spec.Name, PartnerSummary: pr.Summary})
		}
	}
	return doc
}
