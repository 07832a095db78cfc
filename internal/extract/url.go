package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// labeledURLPattern finds the "**URL**: ..." line of the issue template.
var labeledURLPattern = regexp.MustCompile(`\*\*URL\*\*: (.*)`)

var schemePattern = regexp.MustCompile(`(?i)^(//|[a-z][a-z0-9+.-]*://)`)

// ErrNoPublicSuffix is returned when the reported URL's host is not under a
// known public suffix.
var ErrNoPublicSuffix = errors.New("host has no recognized public suffix")

// ParsedURL is the canonical split of the URL reported in an issue.
// All fields are empty when the issue has no usable URL.
type ParsedURL struct {
	Scheme   string `json:"scheme"`
	Netloc   string `json:"netloc"`
	Path     string `json:"path"`
	Fragment string `json:"fragment"`
}

// IsZero reports whether no URL was recovered.
func (p ParsedURL) IsZero() bool {
	return p == ParsedURL{}
}

// ParseLabeledURL extracts and splits the URL following the "**URL**: "
// marker. A missing marker is not an error. A marker whose URL cannot be
// parsed yields the empty ParsedURL together with the reason, so callers can
// log it and carry on.
func ParseLabeledURL(body string) (ParsedURL, error) {
	m := labeledURLPattern.FindStringSubmatch(body)
	if m == nil {
		return ParsedURL{}, nil
	}
	fields := strings.Fields(m[1])
	if len(fields) == 0 {
		return ParsedURL{}, fmt.Errorf("empty URL after marker")
	}
	raw := fields[0]

	fixed := raw
	if !schemePattern.MatchString(fixed) {
		fixed = "https://" + fixed
	} else if strings.HasPrefix(fixed, "//") {
		fixed = "https:" + fixed
	}

	u, err := url.Parse(fixed)
	if err != nil {
		return ParsedURL{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	if !HasPublicSuffix(u.Hostname()) {
		return ParsedURL{}, fmt.Errorf("parse %q: %w", raw, ErrNoPublicSuffix)
	}

	netloc := u.Host
	if u.User != nil {
		netloc = u.User.String() + "@" + netloc
	}
	path, fragment := rawPathAndFragment(fixed)
	return ParsedURL{
		Scheme:   u.Scheme,
		Netloc:   netloc,
		Path:     path,
		Fragment: fragment,
	}, nil
}

// rawPathAndFragment returns the path and fragment of an absolute URL
// exactly as written, without the re-escaping url.URL applies to non-ASCII
// text.
func rawPathAndFragment(absolute string) (path, fragment string) {
	rest := absolute
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+len("://"):]
	}
	i := strings.IndexAny(rest, "/?#")
	if i < 0 {
		return "", ""
	}
	rest = rest[i:]
	if j := strings.IndexByte(rest, '#'); j >= 0 {
		rest, fragment = rest[:j], rest[j+1:]
	}
	if k := strings.IndexByte(rest, '?'); k >= 0 {
		rest = rest[:k]
	}
	return rest, fragment
}
