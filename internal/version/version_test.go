package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	if got := Short(); got != Version {
		t.Errorf("Short() = %q, want %q", got, Version)
	}
}

func TestInfo(t *testing.T) {
	result := Info()

	for _, want := range []string{Name, Version, "commit:", "built:", runtime.Version()} {
		if !strings.Contains(result, want) {
			t.Errorf("Info() = %q, want it to contain %q", result, want)
		}
	}
}

func TestInfoCommitTruncation(t *testing.T) {
	originalCommit := Commit
	defer func() { Commit = originalCommit }()

	Commit = "abc123456789abcdef"
	result := Info()

	if !strings.Contains(result, "abc1234") {
		t.Errorf("Info() should contain truncated commit 'abc1234', got %q", result)
	}
	if strings.Contains(result, "abc123456789abcdef") {
		t.Errorf("Info() should not contain the full commit, got %q", result)
	}
}

func TestFull(t *testing.T) {
	originalCommit := Commit
	defer func() { Commit = originalCommit }()
	Commit = "abc123456789abcdef"

	result := Full()
	for _, want := range []string{Name, Version, "abc123456789abcdef", runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(result, want) {
			t.Errorf("Full() = %q, want it to contain %q", result, want)
		}
	}
	if lines := strings.Count(result, "\n"); lines != 4 {
		t.Errorf("Full() has %d line breaks, want 4", lines)
	}
}
