package cli

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/webcompat/webcompat-search/internal/bugzilla"
	"github.com/webcompat/webcompat-search/internal/config"
	"github.com/webcompat/webcompat-search/internal/github"
	"github.com/webcompat/webcompat-search/internal/index"
	"github.com/webcompat/webcompat-search/internal/ingest"
)

const githubBurst = 5

func newStore(cfg *config.Config, logger zerolog.Logger) (*index.Store, error) {
	return index.New(index.Config{
		URL:      cfg.Elasticsearch.URL,
		Username: cfg.Elasticsearch.Username,
		Password: cfg.Elasticsearch.Password,
		Scroll:   cfg.ScrollKeepAlive(),
		PageSize: cfg.Elasticsearch.PageSize,
		Timeout:  cfg.HTTPTimeout(),
	}, index.WithLogger(logger))
}

func newGitHubClient(cfg *config.Config) (*github.Client, error) {
	var tokens github.TokenSource
	if cfg.GitHub.UsesApp() {
		app, err := github.NewAppTokenSource(
			cfg.GitHub.AppID,
			cfg.GitHub.InstallationID,
			[]byte(cfg.GitHub.PrivateKey),
			github.WithAppBaseURL(cfg.GitHub.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure GitHub App auth: %w", err)
		}
		tokens = app
	} else {
		tokens = github.StaticToken(cfg.GitHub.Token)
	}

	return github.NewClient(tokens, cfg.GitHub.Owner, cfg.GitHub.Repo).
		WithBaseURL(cfg.GitHub.BaseURL).
		WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout()}).
		WithRateLimit(cfg.GitHub.RatePerSecond, githubBurst), nil
}

// newBugzillaClient keeps the client's own timeout; buglist searches over
// every partner bug routinely outlast the general HTTP timeout.
func newBugzillaClient(cfg *config.Config) *bugzilla.Client {
	return bugzilla.NewClient(cfg.Bugzilla.BaseURL,
		bugzilla.WithAPIKey(cfg.Bugzilla.APIKey),
		bugzilla.WithRateLimit(cfg.Bugzilla.RatePerSecond),
	)
}

func newPipeline(cfg *config.Config, source ingest.Source, store ingest.Store, logger zerolog.Logger) *ingest.Pipeline {
	return ingest.New(source, store, cfg.Elasticsearch.IssuesIndex,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithLogger(logger),
	)
}
