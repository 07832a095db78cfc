package extract

import (
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// deniedSuffixes are the project's own hosting domains. They show up in
// nearly every issue body and say nothing about the site being reported.
var deniedSuffixes = []string{
	"webcompat.com",
	"githubusercontent.com",
}

// HasPublicSuffix reports whether host ends in a suffix known to the public
// suffix list and has at least one label in front of it.
func HasPublicSuffix(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	// Unlisted TLDs fall through to the implicit "*" rule, which reports a
	// single label and icann=false.
	if !icann && !strings.Contains(suffix, ".") {
		return false
	}
	return len(host) > len(suffix)+1
}

// IsDenied reports whether domain belongs to one of the denylisted hosts.
func IsDenied(domain string) bool {
	for _, suffix := range deniedSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

// FilterValid keeps the candidates that have a recognized public suffix and
// are not denylisted. The result is sorted so it does not depend on map
// iteration order.
func FilterValid(domains DomainSet) []string {
	valid := make([]string, 0, len(domains))
	for d := range domains {
		if !HasPublicSuffix(d) || IsDenied(d) {
			continue
		}
		valid = append(valid, d)
	}
	sort.Strings(valid)
	return valid
}
