package dashboard

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/webcompat/webcompat-search/internal/bugzilla"
	"github.com/webcompat/webcompat-search/internal/fixtures"
)

// SeeAlsoPattern selects Bugzilla bugs that link back to webcompat.
const SeeAlsoPattern = ".*webcompat.*"

const seeAlsoMarker = "webcompat"

var issueNumberPattern = regexp.MustCompile(`\d{2,}`)

// JoinRow links a Bugzilla bug to a webcompat issue it lists in see_also.
type JoinRow struct {
	BugzillaID  int
	WebcompatID int
}

// JoinRows scans each bug's see_also links for webcompat issue references.
// A link counts when it mentions webcompat and contains a run of at least
// two digits; the first such run is the issue number. Duplicate pairs are
// dropped and the first occurrence keeps its position.
func JoinRows(bugs []bugzilla.Bug) []JoinRow {
	var rows []JoinRow
	seen := make(map[JoinRow]struct{})
	for _, bug := range bugs {
		for _, link := range bug.SeeAlso {
			if !strings.Contains(link, seeAlsoMarker) {
				continue
			}
			digits := issueNumberPattern.FindString(link)
			if digits == "" {
				continue
			}
			n, err := strconv.Atoi(digits)
			if err != nil {
				continue
			}
			row := JoinRow{BugzillaID: bug.ID, WebcompatID: n}
			if _, dup := seen[row]; dup {
				continue
			}
			seen[row] = struct{}{}
			rows = append(rows, row)
		}
	}
	return rows
}

// DupedBug summarizes one Bugzilla bug and the webcompat reports that were
// closed as its duplicates.
type DupedBug struct {
	ID           int    `json:"id"`
	WCDupes      int    `json:"wc_dupes"`
	Component    string `json:"component"`
	Summary      string `json:"summary"`
	MostReported string `json:"most_reported"`
}

// DuplicateClusters joins open Bugzilla bugs to the webcompat issues that
// reference them and returns the limit bugs with the most linked issues.
// hostByNumber maps issue numbers to primary hostnames; issues that are
// missing or have no hostname still count as duplicates but never appear
// in most_reported.
func DuplicateClusters(bugs []bugzilla.Bug, hostByNumber map[int]string, ranks *fixtures.Ranks, limit int) []DupedBug {
	open := make(map[int]bugzilla.Bug)
	for _, bug := range bugs {
		if bugzilla.IsOpenStatus(bug.Status) {
			open[bug.ID] = bug
		}
	}

	dupes := make(map[int]int)
	hosts := make(map[int]map[string]int)
	for _, row := range JoinRows(bugs) {
		if _, ok := open[row.BugzillaID]; !ok {
			continue
		}
		dupes[row.BugzillaID]++
		if hosts[row.BugzillaID] == nil {
			hosts[row.BugzillaID] = make(map[string]int)
		}
		hosts[row.BugzillaID][hostByNumber[row.WebcompatID]]++
	}

	ids := make([]int, 0, len(dupes))
	for id := range dupes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if dupes[ids[i]] != dupes[ids[j]] {
			return dupes[ids[i]] > dupes[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]DupedBug, 0, len(ids))
	for _, id := range ids {
		bug := open[id]
		out = append(out, DupedBug{
			ID:           id,
			WCDupes:      dupes[id],
			Component:    bug.Component,
			Summary:      bug.Summary,
			MostReported: mostReported(hosts[id], ranks),
		})
	}
	return out
}

// mostReported formats the three most frequent hostnames as
// "host (n), host (n)". The missing-hostname bucket takes part in the
// ranking but is not printed.
func mostReported(counts map[string]int, ranks *fixtures.Ranks) string {
	var parts []string
	for _, hc := range topHosts(counts, 3) {
		if hc.Host == "" {
			continue
		}
		parts = append(parts, annotateHost(hc.Host, ranks)+" ("+strconv.Itoa(hc.Count)+")")
	}
	return strings.Join(parts, ", ")
}
