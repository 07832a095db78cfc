package dashboard

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/webcompat/webcompat-search/internal/bugzilla"
	"github.com/webcompat/webcompat-search/internal/fixtures"
)

// PartnerWhiteboard selects bugs tagged for any partner relationship.
const PartnerWhiteboard = "[platform-rel"

const partnerTagPrefix = "platform-rel-"

// SeriesStart is the first day of every partner time series.
var SeriesStart = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

var whiteboardTagPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// PartnerSpec decides which bugs belong to a partner from the bracketed
// platform-rel tags on their whiteboard.
type PartnerSpec struct {
	Name    string
	Include []string
	Exclude []string
}

// PartnerSpecs converts the partner fixture table.
func PartnerSpecs(partners []fixtures.Partner) []PartnerSpec {
	specs := make([]PartnerSpec, len(partners))
	for i, p := range partners {
		specs[i] = PartnerSpec{Name: p.Site, Include: p.Include, Exclude: p.Exclude}
	}
	return specs
}

// WhiteboardTags returns the lower-cased contents of every [bracketed] tag.
func WhiteboardTags(whiteboard string) []string {
	var tags []string
	for _, m := range whiteboardTagPattern.FindAllStringSubmatch(strings.ToLower(whiteboard), -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// Matches reports whether tags include one of the partner's include tags and
// none of its exclude tags. Exclusion wins.
func (s PartnerSpec) Matches(tags []string) bool {
	has := func(want []string) bool {
		for _, tag := range tags {
			for _, w := range want {
				if tag == partnerTagPrefix+w {
					return true
				}
			}
		}
		return false
	}
	return !has(s.Exclude) && has(s.Include)
}

// Classify groups bugs by partner. A bug may land in several partners or in
// none. Partners without bugs are absent from the result.
func Classify(bugs []bugzilla.Bug, specs []PartnerSpec) map[string][]bugzilla.Bug {
	out := make(map[string][]bugzilla.Bug)
	for _, bug := range bugs {
		tags := WhiteboardTags(bug.Whiteboard)
		for _, spec := range specs {
			if spec.Matches(tags) {
				out[spec.Name] = append(out[spec.Name], bug)
			}
		}
	}
	return out
}

// clauses builds the advanced-search fields that select open bugs carrying
// any include tag and no exclude tag, numbering fields from start.
func (s PartnerSpec) clauses(q url.Values, start int) url.Values {
	field := start
	set := func(prefix string, v string) {
		q.Set(prefix+strconv.Itoa(field), v)
	}
	q.Set("resolution", "---")
	q.Set("query_format", "advanced")
	set("f", "OP")
	set("j", "OR")
	field++

	tagClause := func(tag string) {
		set("f", "status_whiteboard")
		set("o", "substring")
		set("v", "["+partnerTagPrefix+tag+"]")
		field++
	}
	for _, tag := range s.Include {
		tagClause(tag)
	}
	set("f", "CP")
	field++

	if len(s.Exclude) == 0 {
		return q
	}
	set("f", "OP")
	set("n", "1")
	field++
	for _, tag := range s.Exclude {
		tagClause(tag)
	}
	return q
}

// OpenQuery is the search for the partner's open bugs.
func (s PartnerSpec) OpenQuery() url.Values {
	return s.clauses(url.Values{}, 1)
}

// SitewaitQuery is the search for the partner's open bugs waiting on the site.
func (s PartnerSpec) SitewaitQuery() url.Values {
	q := url.Values{}
	q.Set("f1", "status_whiteboard")
	q.Set("o1", "substring")
	q.Set("v1", "[sitewait]")
	return s.clauses(q, 2)
}

// RegressionQuery is the search for the partner's open regressions.
func (s PartnerSpec) RegressionQuery() url.Values {
	q := url.Values{}
	q.Set("keywords", "regression")
	q.Set("keywords_type", "allwords")
	return s.clauses(q, 1)
}

// DateAxis lists every calendar day from start through end inclusive.
func DateAxis(start, end time.Time) []time.Time {
	start, end = day(start), day(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RegressionBug is an open regression counted against a partner.
type RegressionBug struct {
	ID         int    `json:"id"`
	Summary    string `json:"summary"`
	Resolution string `json:"resolution"`
	Partner    string `json:"partner,omitempty"`
}

// PartnerSummary holds a partner's counters, search links and open-bug series.
type PartnerSummary struct {
	NOpen         int    `json:"n_open"`
	OpenURL       string `json:"open_url"`
	NSitewait     int    `json:"n_sitewait"`
	SitewaitURL   string `json:"sitewait_url"`
	NRegression   int    `json:"n_regression"`
	RegressionURL string `json:"regression_url"`
	OpenBugsY     []int  `json:"open_bugs_y"`
}

// PartnerReport is the dashboard entry for one partner.
type PartnerReport struct {
	Summary        PartnerSummary  `json:"summary"`
	RegressionBugs []RegressionBug `json:"regression_bugs"`
}

// Summarize computes a partner's report. Bugs are visited newest first, so
// regression bugs are listed in that order. For each day of dates the series
// counts bugs created on or before that day and not resolved before it.
func Summarize(spec PartnerSpec, bugs []bugzilla.Bug, dates []time.Time, buglistURL func(url.Values) string) PartnerReport {
	sorted := make([]bugzilla.Bug, len(bugs))
	copy(sorted, bugs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreationTime.After(sorted[j].CreationTime.Time)
	})

	report := PartnerReport{
		Summary: PartnerSummary{
			OpenURL:       buglistURL(spec.OpenQuery()),
			SitewaitURL:   buglistURL(spec.SitewaitQuery()),
			RegressionURL: buglistURL(spec.RegressionQuery()),
			OpenBugsY:     make([]int, len(dates)),
		},
		RegressionBugs: []RegressionBug{},
	}
	s := &report.Summary

	// delta[i] changes the open count from day i onward.
	delta := make([]int, len(dates)+1)
	for _, bug := range sorted {
		if bug.Resolution == "" {
			s.NOpen++
			if bug.HasKeyword("regression") {
				report.RegressionBugs = append(report.RegressionBugs, RegressionBug{
					ID:         bug.ID,
					Summary:    bug.Summary,
					Resolution: bug.Resolution,
				})
				s.NRegression++
			}
			if strings.Contains(strings.ToLower(bug.Whiteboard), "sitewait") {
				s.NSitewait++
			}
		}

		if len(dates) == 0 {
			continue
		}
		first := dayIndex(dates[0], day(bug.CreationTime.Time))
		last := len(dates) - 1
		if !bug.LastResolved.IsZero() {
			last = min(last, dayIndex(dates[0], day(bug.LastResolved.Time)))
		}
		first = max(first, 0)
		if first > last {
			continue
		}
		delta[first]++
		delta[last+1]--
	}

	running := 0
	for i := range dates {
		running += delta[i]
		s.OpenBugsY[i] = running
	}
	return report
}

// dayIndex is the number of whole days from origin to d, both midnights.
func dayIndex(origin, d time.Time) int {
	return int(d.Sub(origin).Hours() / 24)
}
