package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/webcompat/webcompat-search/internal/cloud/gcp"
)

// Config represents the full webcompat-search configuration
type Config struct {
	GitHub        GitHubConfig        `mapstructure:"github"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Bugzilla      BugzillaConfig      `mapstructure:"bugzilla"`
	Reports       ReportsConfig       `mapstructure:"reports"`
	Fixtures      FixturesConfig      `mapstructure:"fixtures"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Log           LogConfig           `mapstructure:"log"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// GitHubConfig selects the issue repository and how to authenticate.
// Either a token (or token_secret) or the three GitHub App settings are
// required for ingestion.
type GitHubConfig struct {
	Owner         string  `mapstructure:"owner"`
	Repo          string  `mapstructure:"repo"`
	BaseURL       string  `mapstructure:"base_url"`
	Token         string  `mapstructure:"token"`
	TokenSecret   string  `mapstructure:"token_secret"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`

	AppID            int64  `mapstructure:"app_id"`
	InstallationID   int64  `mapstructure:"installation_id"`
	PrivateKey       string `mapstructure:"private_key"`
	PrivateKeySecret string `mapstructure:"private_key_secret"`
}

// UsesApp reports whether GitHub App authentication is configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID != 0
}

// ElasticsearchConfig contains search index connection settings
type ElasticsearchConfig struct {
	URL            string `mapstructure:"url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	PasswordSecret string `mapstructure:"password_secret"`
	IssuesIndex    string `mapstructure:"issues_index"`
	Scroll         string `mapstructure:"scroll"`
	PageSize       int    `mapstructure:"page_size"`
}

// BugzillaConfig contains Bugzilla REST settings
type BugzillaConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	APIKeySecret  string  `mapstructure:"api_key_secret"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// ReportsConfig names the indices the dashboard jobs write
type ReportsConfig struct {
	DupedIndex         string `mapstructure:"duped_index"`
	RegressionIndex    string `mapstructure:"regression_index"`
	SummaryIndex       string `mapstructure:"summary_index"`
	TopSitesCountIndex string `mapstructure:"top_sites_count_index"`
}

// FixturesConfig overrides embedded reference data
type FixturesConfig struct {
	WorldRanksPath string `mapstructure:"world_ranks_path"`
}

// IngestConfig tunes issue ingestion
type IngestConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig selects log level and output format
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig bounds outbound calls
type HTTPConfig struct {
	Timeout string `mapstructure:"timeout"`
}

// envKeys are the settings that may come from WEBCOMPAT_* variables.
// viper only unmarshals environment values for keys it has been told about.
var envKeys = []string{
	"github.owner", "github.repo", "github.base_url", "github.token", "github.token_secret",
	"github.rate_per_second", "github.app_id", "github.installation_id",
	"github.private_key", "github.private_key_secret",
	"elasticsearch.url", "elasticsearch.username", "elasticsearch.password",
	"elasticsearch.password_secret", "elasticsearch.issues_index",
	"elasticsearch.scroll", "elasticsearch.page_size",
	"bugzilla.base_url", "bugzilla.api_key", "bugzilla.api_key_secret", "bugzilla.rate_per_second",
	"reports.duped_index", "reports.regression_index", "reports.summary_index",
	"reports.top_sites_count_index",
	"fixtures.world_ranks_path",
	"ingest.workers",
	"log.level", "log.format",
	"http.timeout",
}

// BindEnv registers every setting with viper's environment lookup. Call
// after SetEnvPrefix and SetEnvKeyReplacer.
func BindEnv() error {
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.GitHub.Owner == "" {
		cfg.GitHub.Owner = "webcompat"
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = "web-bugs"
	}
	if cfg.GitHub.BaseURL == "" {
		cfg.GitHub.BaseURL = "https://api.github.com"
	}
	if cfg.GitHub.RatePerSecond == 0 {
		cfg.GitHub.RatePerSecond = 10
	}

	if cfg.Elasticsearch.URL == "" {
		cfg.Elasticsearch.URL = "http://localhost:9200"
	}
	if cfg.Elasticsearch.IssuesIndex == "" {
		cfg.Elasticsearch.IssuesIndex = "webcompat_bugs"
	}
	if cfg.Elasticsearch.Scroll == "" {
		cfg.Elasticsearch.Scroll = "120m"
	}
	if cfg.Elasticsearch.PageSize == 0 {
		cfg.Elasticsearch.PageSize = 500
	}

	if cfg.Bugzilla.BaseURL == "" {
		cfg.Bugzilla.BaseURL = "https://bugzilla.mozilla.org"
	}
	if cfg.Bugzilla.RatePerSecond == 0 {
		cfg.Bugzilla.RatePerSecond = 2
	}

	if cfg.Reports.DupedIndex == "" {
		cfg.Reports.DupedIndex = "bugzilla_duped"
	}
	if cfg.Reports.RegressionIndex == "" {
		cfg.Reports.RegressionIndex = "bugzilla_partner_regression_bugs"
	}
	if cfg.Reports.SummaryIndex == "" {
		cfg.Reports.SummaryIndex = "dashboard_summary"
	}
	if cfg.Reports.TopSitesCountIndex == "" {
		cfg.Reports.TopSitesCountIndex = "bugzilla_top_sites_count"
	}

	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.HTTP.Timeout == "" {
		cfg.HTTP.Timeout = "30s"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.Log.Format)
	}

	if _, err := time.ParseDuration(c.HTTP.Timeout); err != nil {
		return fmt.Errorf("invalid http.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Elasticsearch.Scroll); err != nil {
		return fmt.Errorf("invalid elasticsearch.scroll: %w", err)
	}

	if c.Elasticsearch.URL == "" {
		return fmt.Errorf("elasticsearch url is required")
	}
	if c.Elasticsearch.PageSize < 1 {
		return fmt.Errorf("elasticsearch.page_size must be positive")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be positive")
	}
	if c.GitHub.RatePerSecond < 0 || c.Bugzilla.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative")
	}

	return nil
}

// ValidateForIngest performs additional validation required before fetching issues
func (c *Config) ValidateForIngest() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return fmt.Errorf("github owner and repo are required")
	}
	if c.Elasticsearch.IssuesIndex == "" {
		return fmt.Errorf("elasticsearch issues_index is required")
	}

	if c.GitHub.UsesApp() {
		if c.GitHub.InstallationID == 0 {
			return fmt.Errorf("GitHub App Installation ID is required")
		}
		if c.GitHub.PrivateKey == "" && c.GitHub.PrivateKeySecret == "" {
			return fmt.Errorf("GitHub App private key or private key secret path is required")
		}
		return nil
	}

	if c.GitHub.Token == "" && c.GitHub.TokenSecret == "" {
		return fmt.Errorf("github token, token_secret or app_id is required")
	}

	return nil
}

// ValidateForReport performs additional validation required before publishing reports
func (c *Config) ValidateForReport() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Elasticsearch.IssuesIndex == "" {
		return fmt.Errorf("elasticsearch issues_index is required")
	}
	if c.Reports.DupedIndex == "" || c.Reports.RegressionIndex == "" || c.Reports.SummaryIndex == "" {
		return fmt.Errorf("reports duped_index, regression_index and summary_index are required")
	}
	if c.Bugzilla.BaseURL == "" {
		return fmt.Errorf("bugzilla base_url is required")
	}

	return nil
}

// HTTPTimeout returns the parsed per-call timeout. Call after Validate.
func (c *Config) HTTPTimeout() time.Duration {
	d, _ := time.ParseDuration(c.HTTP.Timeout)
	return d
}

// ScrollKeepAlive returns the parsed scroll keep-alive. Call after Validate.
func (c *Config) ScrollKeepAlive() time.Duration {
	d, _ := time.ParseDuration(c.Elasticsearch.Scroll)
	return d
}

// SecretRefs lists the settings that may be filled from Secret Manager.
func (c *Config) SecretRefs() []gcp.SecretRef {
	return []gcp.SecretRef{
		{Name: "github.token", Ref: c.GitHub.TokenSecret, Dest: &c.GitHub.Token},
		{Name: "github.private_key", Ref: c.GitHub.PrivateKeySecret, Dest: &c.GitHub.PrivateKey},
		{Name: "elasticsearch.password", Ref: c.Elasticsearch.PasswordSecret, Dest: &c.Elasticsearch.Password},
		{Name: "bugzilla.api_key", Ref: c.Bugzilla.APIKeySecret, Dest: &c.Bugzilla.APIKey},
	}
}
