// Package fixtures provides the static reference tables the reports use:
// the partner whiteboard-tag table, global site popularity ranks, and the
// list of top sites. The tables are embedded, parsed once on first use and
// never mutated afterwards.
package fixtures

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed partners.yaml
var embeddedPartners []byte

//go:embed world_ranks.yaml
var embeddedWorldRanks []byte

//go:embed top_sites.yaml
var embeddedTopSites []byte

// Partner maps a partner site to the platform-rel whiteboard tags that mark
// its bugs.
type Partner struct {
	Site    string   `yaml:"site"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type partnersFile struct {
	Partners []Partner `yaml:"partners"`
}

type topSitesFile struct {
	TopSites []string `yaml:"top_sites"`
}

var (
	partnersOnce sync.Once
	partners     []Partner
	partnersErr  error

	topSitesOnce sync.Once
	topSites     []string
	topSitesErr  error

	ranksOnce sync.Once
	ranks     *Ranks
	ranksErr  error
)

// Partners returns the partner table in declaration order.
func Partners() ([]Partner, error) {
	partnersOnce.Do(func() {
		var f partnersFile
		if err := yaml.Unmarshal(embeddedPartners, &f); err != nil {
			partnersErr = fmt.Errorf("failed to parse partners table: %w", err)
			return
		}
		for i, p := range f.Partners {
			if p.Site == "" || len(p.Include) == 0 {
				partnersErr = fmt.Errorf("partner %d: site and include tags are required", i)
				return
			}
		}
		partners = f.Partners
	})
	if partnersErr != nil {
		return nil, partnersErr
	}
	out := make([]Partner, len(partners))
	copy(out, partners)
	return out, nil
}

// TopSites returns the sites tracked by the bug count report.
func TopSites() ([]string, error) {
	topSitesOnce.Do(func() {
		var f topSitesFile
		if err := yaml.Unmarshal(embeddedTopSites, &f); err != nil {
			topSitesErr = fmt.Errorf("failed to parse top sites: %w", err)
			return
		}
		topSites = f.TopSites
	})
	if topSitesErr != nil {
		return nil, topSitesErr
	}
	return append([]string(nil), topSites...), nil
}

// Ranks is a read-only site popularity table that remembers the order its
// sites were declared in.
type Ranks struct {
	sites []RankedSite
}

// RankedSite is one row of the rank table.
type RankedSite struct {
	Site string
	Rank string
}

// NewRanks builds a table from rows in declaration order. Sites are
// lowercased; a repeated site keeps its first rank.
func NewRanks(rows ...RankedSite) *Ranks {
	r := &Ranks{}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		site := strings.ToLower(strings.TrimSpace(row.Site))
		if site == "" || seen[site] {
			continue
		}
		seen[site] = true
		r.sites = append(r.sites, RankedSite{Site: site, Rank: row.Rank})
	}
	return r
}

// ParseRanks reads a rank table from a YAML or JSON mapping of site to
// rank label, keeping the order the sites appear in.
func ParseRanks(data []byte) (*Ranks, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse world ranks: %w", err)
	}
	if len(doc.Content) == 0 {
		return NewRanks(), nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse world ranks: line %d: expected a mapping of site to rank", m.Line)
	}

	rows := make([]RankedSite, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i], m.Content[i+1]
		if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("failed to parse world ranks: line %d: site and rank must be scalars", key.Line)
		}
		rows = append(rows, RankedSite{Site: key.Value, Rank: value.Value})
	}
	return NewRanks(rows...), nil
}

// WorldRanks returns the rank table. When path is non-empty it is read from
// that file instead of the embedded copy. The first successful call fixes
// the table for the life of the process.
func WorldRanks(path string) (*Ranks, error) {
	ranksOnce.Do(func() {
		data := embeddedWorldRanks
		if path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				ranksErr = fmt.Errorf("failed to read world ranks: %w", err)
				return
			}
			data = b
		}
		ranks, ranksErr = ParseRanks(data)
	})
	return ranks, ranksErr
}

// Lookup finds the ranked site that host equals or is a subdomain of.
// Sites are tried in declaration order and the first match wins.
func (r *Ranks) Lookup(host string) (site, rank string, ok bool) {
	if r == nil {
		return "", "", false
	}
	for _, row := range r.sites {
		if host == row.Site || strings.HasSuffix(host, "."+row.Site) {
			return row.Site, row.Rank, true
		}
	}
	return "", "", false
}
