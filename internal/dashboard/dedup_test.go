package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webcompat/webcompat-search/internal/bugzilla"
)

func TestJoinRows(t *testing.T) {
	bugs := []bugzilla.Bug{
		{ID: 1500, SeeAlso: []string{"https://github.com/webcompat/web-bugs/issues/4821"}},
		{ID: 1600, SeeAlso: []string{
			"https://webcompat.com/issues/4822",
			"https://webcompat.com/issues/4822",
			"https://webcompat.com/issues/7",
			"https://bugs.chromium.org/p/chromium/issues/detail?id=123456",
			"https://webcompat.com/issues/",
		}},
		{ID: 1700},
	}

	assert.Equal(t, []JoinRow{
		{BugzillaID: 1500, WebcompatID: 4821},
		{BugzillaID: 1600, WebcompatID: 4822},
	}, JoinRows(bugs))
}

func TestDuplicateClusters(t *testing.T) {
	link := func(n string) string { return "https://webcompat.com/issues/" + n }
	bugs := []bugzilla.Bug{
		{
			ID: 100, Status: "NEW", Component: "Layout", Summary: "Flexbox overflow",
			SeeAlso: []string{
				"https://github.com/webcompat/web-bugs/issues/4821",
				link("4822"),
				link("4822"),
				"https://github.com/other/project/issues/1234",
			},
		},
		{ID: 200, Status: "RESOLVED", SeeAlso: []string{link("4823"), link("4824"), link("4825")}},
		{
			ID: 300, Status: "ASSIGNED", Component: "DOM", Summary: "Event order",
			SeeAlso: []string{link("10"), link("11"), link("12"), link("5")},
		},
		{ID: 400, Status: "REOPENED", Component: "CSS", Summary: "Orphan", SeeAlso: []string{link("99")}},
	}
	hostByNumber := map[int]string{
		4821: "a.com",
		4822: "a.com",
		10:   "b.com",
		11:   "",
		12:   "maps.google.com",
	}

	got := DuplicateClusters(bugs, hostByNumber, testRanks(), 10)

	assert.Equal(t, []DupedBug{
		{ID: 300, WCDupes: 3, Component: "DOM", Summary: "Event order", MostReported: "b.com (1), maps.google.com #1 (1)"},
		{ID: 100, WCDupes: 2, Component: "Layout", Summary: "Flexbox overflow", MostReported: "a.com (2)"},
		{ID: 400, WCDupes: 1, Component: "CSS", Summary: "Orphan", MostReported: ""},
	}, got)
}

func TestDuplicateClusters_Limit(t *testing.T) {
	var bugs []bugzilla.Bug
	for id := 1; id <= 15; id++ {
		bugs = append(bugs, bugzilla.Bug{ID: id, Status: "NEW", SeeAlso: []string{"https://webcompat.com/issues/100"}})
	}
	got := DuplicateClusters(bugs, nil, nil, 10)

	assert.Len(t, got, 10)
	// Equal counts fall back to ascending bug id.
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 10, got[9].ID)
}

func TestMostReported_TopThree(t *testing.T) {
	counts := map[string]int{"a.com": 5, "b.com": 4, "c.com": 3, "d.com": 2}
	assert.Equal(t, "a.com (5), b.com (4), c.com (3)", mostReported(counts, nil))
}
