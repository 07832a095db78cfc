package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/webcompat/webcompat-search/internal/cloud/gcp"
)

func validConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "defaults are valid",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			errMsg:  "invalid log format",
		},
		{
			name:    "invalid http timeout",
			modify:  func(c *Config) { c.HTTP.Timeout = "soon" },
			wantErr: true,
			errMsg:  "invalid http.timeout",
		},
		{
			name:    "invalid scroll",
			modify:  func(c *Config) { c.Elasticsearch.Scroll = "2 hours" },
			wantErr: true,
			errMsg:  "invalid elasticsearch.scroll",
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Ingest.Workers = -1 },
			wantErr: true,
			errMsg:  "ingest.workers",
		},
		{
			name:    "negative rate",
			modify:  func(c *Config) { c.Bugzilla.RatePerSecond = -1 },
			wantErr: true,
			errMsg:  "rate_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestConfig_ValidateForIngest(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "no credentials",
			modify:  func(c *Config) {},
			wantErr: true,
			errMsg:  "github token",
		},
		{
			name:   "token",
			modify: func(c *Config) { c.GitHub.Token = "ghp_x" },
		},
		{
			name:   "token secret",
			modify: func(c *Config) { c.GitHub.TokenSecret = "github-token" },
		},
		{
			name: "github app",
			modify: func(c *Config) {
				c.GitHub.AppID = 1
				c.GitHub.InstallationID = 2
				c.GitHub.PrivateKeySecret = "github-app-key"
			},
		},
		{
			name: "github app without installation",
			modify: func(c *Config) {
				c.GitHub.AppID = 1
				c.GitHub.PrivateKeySecret = "github-app-key"
			},
			wantErr: true,
			errMsg:  "Installation ID",
		},
		{
			name: "github app without key",
			modify: func(c *Config) {
				c.GitHub.AppID = 1
				c.GitHub.InstallationID = 2
			},
			wantErr: true,
			errMsg:  "private key",
		},
		{
			name: "missing repo",
			modify: func(c *Config) {
				c.GitHub.Token = "ghp_x"
				c.GitHub.Repo = ""
			},
			wantErr: true,
			errMsg:  "owner and repo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.ValidateForIngest()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateForIngest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateForIngest() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestConfig_ValidateForReport(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateForReport(); err != nil {
		t.Errorf("ValidateForReport() on defaults = %v", err)
	}

	cfg.Reports.SummaryIndex = ""
	if err := cfg.ValidateForReport(); err == nil {
		t.Error("ValidateForReport() expected error without summary index")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{
		GitHub:        GitHubConfig{Repo: "webcompat-tests"},
		Elasticsearch: ElasticsearchConfig{PageSize: 50},
	}
	applyDefaults(&cfg)

	if cfg.GitHub.Owner != "webcompat" {
		t.Errorf("GitHub.Owner = %q, want webcompat", cfg.GitHub.Owner)
	}
	if cfg.GitHub.Repo != "webcompat-tests" {
		t.Errorf("GitHub.Repo = %q, want it kept", cfg.GitHub.Repo)
	}
	if cfg.Elasticsearch.PageSize != 50 {
		t.Errorf("PageSize = %d, want it kept", cfg.Elasticsearch.PageSize)
	}
	if cfg.Elasticsearch.IssuesIndex != "webcompat_bugs" {
		t.Errorf("IssuesIndex = %q", cfg.Elasticsearch.IssuesIndex)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Ingest.Workers)
	}
	if cfg.HTTPTimeout() != 30*time.Second {
		t.Errorf("HTTPTimeout() = %v", cfg.HTTPTimeout())
	}
	if cfg.ScrollKeepAlive() != 120*time.Minute {
		t.Errorf("ScrollKeepAlive() = %v", cfg.ScrollKeepAlive())
	}
}

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("github.owner", "mozilla")
	viper.Set("elasticsearch.url", "http://es:9200")
	viper.Set("ingest.workers", 8)
	viper.Set("bugzilla.rate_per_second", 0.5)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GitHub.Owner != "mozilla" || cfg.GitHub.Repo != "web-bugs" {
		t.Errorf("GitHub = %+v", cfg.GitHub)
	}
	if cfg.Elasticsearch.URL != "http://es:9200" {
		t.Errorf("Elasticsearch.URL = %q", cfg.Elasticsearch.URL)
	}
	if cfg.Ingest.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Ingest.Workers)
	}
	if cfg.Bugzilla.RatePerSecond != 0.5 {
		t.Errorf("Bugzilla.RatePerSecond = %v", cfg.Bugzilla.RatePerSecond)
	}
}

func TestSecretRefs(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.TokenSecret = "github-token"
	cfg.Elasticsearch.PasswordSecret = "es-password"

	refs := cfg.SecretRefs()
	if !gcp.Pending(refs) {
		t.Fatal("Pending() = false with secret refs set")
	}

	for _, r := range refs {
		if r.Ref != "" {
			*r.Dest = "resolved-" + r.Ref
		}
	}
	if cfg.GitHub.Token != "resolved-github-token" {
		t.Errorf("GitHub.Token = %q, want the ref to write through", cfg.GitHub.Token)
	}
	if cfg.Elasticsearch.Password != "resolved-es-password" {
		t.Errorf("Elasticsearch.Password = %q", cfg.Elasticsearch.Password)
	}
	if cfg.Bugzilla.APIKey != "" {
		t.Errorf("Bugzilla.APIKey = %q, want untouched", cfg.Bugzilla.APIKey)
	}
}

func TestBindEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.SetEnvPrefix("WEBCOMPAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	t.Setenv("WEBCOMPAT_ELASTICSEARCH_ISSUES_INDEX", "issues_test")
	t.Setenv("WEBCOMPAT_INGEST_WORKERS", "2")

	if err := BindEnv(); err != nil {
		t.Fatalf("BindEnv() error: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Elasticsearch.IssuesIndex != "issues_test" {
		t.Errorf("IssuesIndex = %q, want issues_test", cfg.Elasticsearch.IssuesIndex)
	}
	if cfg.Ingest.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Ingest.Workers)
	}
}
