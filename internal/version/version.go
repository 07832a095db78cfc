// Package version reports build information for webcompat-search.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name printed in version output.
const Name = "webcompat-search"

// Set via ldflags, e.g.
// go build -ldflags="-X github.com/webcompat/webcompat-search/internal/version.Version=v1.0.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Short returns the version string (e.g., "v1.2.3" or "dev").
func Short() string {
	return Version
}

// vcs fills in commit and build time from the module build info when they
// were not set at link time.
func vcs() (commit, date string) {
	commit, date = Commit, BuildDate
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, date
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" {
				commit = s.Value
			}
		case "vcs.time":
			if date == "unknown" {
				date = s.Value
			}
		}
	}
	return commit, date
}

// Info returns a single-line version string, e.g.
// "webcompat-search v1.2.3 (commit: abc1234, built: 2024-01-15T10:30:00Z, go: go1.23.0)".
func Info() string {
	commit, date := vcs()
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Version, commit, date, runtime.Version())
}

// Full returns a multi-line verbose version output.
func Full() string {
	commit, date := vcs()
	return fmt.Sprintf(`%s %s
  Commit:     %s
  Built:      %s
  Go version: %s
  OS/Arch:    %s/%s`,
		Name, Version, commit, date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
