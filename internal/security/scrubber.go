// Package security keeps credentials out of logs and command output.
package security

import (
	"io"
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

// Each pattern names the part to redact with a "secret" group so the
// surrounding text, quotes included, survives. That keeps scrubbed JSON log
// lines valid JSON.
var sensitivePatterns = []*regexp.Regexp{
	// GitHub tokens keep their type prefix.
	regexp.MustCompile(`\b(?:ghp|gho|ghs|ghr|ghu)_(?P<secret>[A-Za-z0-9]{36,})`),
	regexp.MustCompile(`\bgithub_pat_(?P<secret>[A-Za-z0-9_]{22,})`),

	regexp.MustCompile(`(?i)\bbearer\s+(?P<secret>[A-Za-z0-9_\-./+=]{20,})`),

	// key=value and "key": "value" forms, including query strings and
	// the X-BUGZILLA-API-KEY header.
	regexp.MustCompile(`(?i)(?:token|api[_-]?key|apikey|password|passwd|secret)["']?\s*[:=]\s*["']?(?P<secret>[^\s"'&,}]{8,})`),

	// Credentials embedded in URLs.
	regexp.MustCompile(`://[^/\s:@"]+:(?P<secret>[^/\s@"]+)@`),

	regexp.MustCompile(`(?P<secret>eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)`),

	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----(?P<secret>[\s\S]+?)-----END [A-Z ]*PRIVATE KEY-----`),
}

// Scrubber removes sensitive values from strings.
type Scrubber struct {
	patterns []*regexp.Regexp
}

// NewScrubber creates a Scrubber with the default patterns.
func NewScrubber() *Scrubber {
	return &Scrubber{patterns: sensitivePatterns}
}

// Scrub replaces every secret in input with a redaction marker.
func (s *Scrubber) Scrub(input string) string {
	out := input
	for _, pattern := range s.patterns {
		out = redactGroup(pattern, out)
	}
	return out
}

func redactGroup(pattern *regexp.Regexp, input string) string {
	group := pattern.SubexpIndex("secret")
	matches := pattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 || group < 0 {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2*group], m[2*group+1]
		if start < 0 {
			continue
		}
		b.WriteString(input[last:start])
		b.WriteString(redacted)
		last = end
	}
	b.WriteString(input[last:])
	return b.String()
}

// Writer scrubs everything written through it before passing it on.
type Writer struct {
	w        io.Writer
	scrubber *Scrubber
}

// NewWriter wraps w. Each Write is scrubbed independently, so secrets must
// not straddle two writes; zerolog emits one event per write.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, scrubber: NewScrubber()}
}

// Write implements io.Writer. It reports len(p) on success even when the
// scrubbed output length differs.
func (w *Writer) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.w, w.scrubber.Scrub(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
