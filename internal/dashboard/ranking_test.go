package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcompat/webcompat-search/internal/fixtures"
)

func testRanks() *fixtures.Ranks {
	return fixtures.NewRanks(
		fixtures.RankedSite{Site: "google.com", Rank: "#1"},
		fixtures.RankedSite{Site: "youtube.com", Rank: "#2"},
		fixtures.RankedSite{Site: "co.uk", Rank: "tld"},
	)
}

func TestAnnotateRankings(t *testing.T) {
	in := []HostCount{
		{Host: "google.com", Count: 4},
		{Host: "maps.google.com", Count: 3},
		{Host: "notgoogle.com", Count: 2},
		{Host: "bbc.co.uk", Count: 1},
		{Host: "youtube.com.evil", Count: 1},
	}

	got := AnnotateRankings(in, testRanks())

	assert.Equal(t, RankedCounts{
		{Host: "google.com #1", Count: 4},
		{Host: "maps.google.com #1", Count: 3},
		{Host: "notgoogle.com", Count: 2},
		{Host: "bbc.co.uk tld", Count: 1},
		{Host: "youtube.com.evil", Count: 1},
	}, got)
	assert.Equal(t, "google.com", in[0].Host, "input must not be modified")
}

func TestAnnotateRankings_AtMostOneRename(t *testing.T) {
	tests := []struct {
		name  string
		ranks *fixtures.Ranks
		want  string
	}{
		{
			name: "parent declared first",
			ranks: fixtures.NewRanks(
				fixtures.RankedSite{Site: "google.com", Rank: "#1"},
				fixtures.RankedSite{Site: "mail.google.com", Rank: "#50"},
			),
			want: "mail.google.com #1",
		},
		{
			name: "subdomain declared first",
			ranks: fixtures.NewRanks(
				fixtures.RankedSite{Site: "mail.google.com", Rank: "#50"},
				fixtures.RankedSite{Site: "google.com", Rank: "#1"},
			),
			want: "mail.google.com #50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnnotateRankings([]HostCount{{Host: "mail.google.com", Count: 1}}, tt.ranks)
			assert.Equal(t, RankedCounts{{Host: tt.want, Count: 1}}, got)
		})
	}
}

func TestRankedCounts_MarshalJSON(t *testing.T) {
	rc := AnnotateRankings([]HostCount{
		{Host: "zeta.org", Count: 9},
		{Host: "google.com", Count: 3},
	}, testRanks())

	data, err := json.Marshal(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta.org":9,"google.com #1":3}`, string(data))

	empty, err := json.Marshal(RankedCounts{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}
