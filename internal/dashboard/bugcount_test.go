package dashboard

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcompat/webcompat-search/internal/extract"
)

type fakeCounter struct {
	counts map[string]int
}

func (f fakeCounter) Count(ctx context.Context, params url.Values) (int, error) {
	n, ok := f.counts[params.Get("bug_file_loc")]
	if !ok {
		return 0, errors.New("bugzilla error 32000 (status 500): boom")
	}
	return n, nil
}

func (f fakeCounter) BuglistURL(params url.Values) string {
	return "https://bugzilla.example/buglist.cgi?" + params.Encode()
}

func TestSiteBugQuery(t *testing.T) {
	q := SiteBugQuery("example.com")

	assert.Equal(t, "example.com", q.Get("bug_file_loc"))
	assert.Equal(t, "allwordssubstr", q.Get("bug_file_loc_type"))
	assert.Equal(t, "---", q.Get("resolution"))
	assert.Equal(t, []string{"Core", "Firefox", "Firefox for Android", "Web Compatibility"}, q["product"])
	assert.Contains(t, q["bug_status"], "NEW")
	assert.NotContains(t, q["bug_status"], "RESOLVED")
}

func TestCountSiteBugs(t *testing.T) {
	counter := fakeCounter{counts: map[string]int{"google.com": 42, "example.com": 0}}

	got := CountSiteBugs(context.Background(), counter, []string{"google.com", "broken.com", "example.com"}, zerolog.Nop())

	require.Len(t, got, 2)
	assert.Equal(t, "google.com", got[0].Site)
	assert.Equal(t, 42, got[0].BugsCount)
	assert.Equal(t, extract.ParsedURL{Netloc: "google.com"}, got[0].ParsedURL)
	assert.Equal(t, counter.BuglistURL(SiteBugQuery("google.com")), got[0].URL)
	assert.Equal(t, "example.com", got[1].Site)
	assert.Equal(t, 0, got[1].BugsCount)
}

func TestCountSiteBugs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := CountSiteBugs(ctx, fakeCounter{}, []string{"a.com", "b.com"}, zerolog.Nop())
	assert.Empty(t, got)
}

func TestPublishSiteBugCounts(t *testing.T) {
	store := &fakeStore{}
	counts := []SiteBugCount{{Site: "a.com", BugsCount: 1}, {Site: "b.com", BugsCount: 2}}

	require.NoError(t, PublishSiteBugCounts(context.Background(), store, "sites", counts))
	assert.Equal(t, []string{"put sites a.com", "put sites b.com"}, store.sequence())

	failing := &fakeStore{failOn: "put sites"}
	assert.Error(t, PublishSiteBugCounts(context.Background(), failing, "sites", counts))
	assert.Len(t, failing.ops, 1)
}
