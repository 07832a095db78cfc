package dashboard

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/webcompat/webcompat-search/internal/bugzilla"
	"github.com/webcompat/webcompat-search/internal/extract"
)

// countedProducts are the products searched for site bugs.
var countedProducts = []string{"Core", "Firefox", "Firefox for Android", "Web Compatibility"}

// BugCounter counts Bugzilla search results.
type BugCounter interface {
	Count(ctx context.Context, params url.Values) (int, error)
	BuglistURL(params url.Values) string
}

// SiteBugCount is the number of open bugs whose URL field mentions a site.
type SiteBugCount struct {
	Site      string            `json:"site"`
	URL       string            `json:"url"`
	BugsCount int               `json:"bugs_count"`
	ParsedURL extract.ParsedURL `json:"parsed_url"`
}

// SiteBugQuery is the search for open bugs in the web-facing products whose
// URL field contains site.
func SiteBugQuery(site string) url.Values {
	q := url.Values{}
	q.Set("bug_file_loc_type", "allwordssubstr")
	q.Set("bug_file_loc", site)
	q.Set("resolution", "---")
	q.Set("query_format", "advanced")
	for _, status := range bugzilla.OpenStatuses {
		q.Add("bug_status", status)
	}
	for _, product := range countedProducts {
		q.Add("product", product)
	}
	return q
}

// CountSiteBugs counts open bugs for each site. A site whose count fails
// is logged and left out; the remaining sites are still counted.
func CountSiteBugs(ctx context.Context, counter BugCounter, sites []string, logger zerolog.Logger) []SiteBugCount {
	out := make([]SiteBugCount, 0, len(sites))
	for _, site := range sites {
		q := SiteBugQuery(site)
		n, err := counter.Count(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return out
			}
			logger.Error().Err(err).Str("site", site).Msg("Failed to count site bugs")
			continue
		}
		logger.Debug().Str("site", site).Int("bugs", n).Msg("Counted site bugs")
		out = append(out, SiteBugCount{
			Site:      site,
			URL:       counter.BuglistURL(q),
			BugsCount: n,
			ParsedURL: extract.ParsedURL{Netloc: site},
		})
	}
	return out
}

// PublishSiteBugCounts writes one document per site, keyed by site.
func PublishSiteBugCounts(ctx context.Context, store Store, indexName string, counts []SiteBugCount) error {
	for _, c := range counts {
		if err := store.Put(ctx, indexName, c.Site, c); err != nil {
			return err
		}
	}
	return nil
}
