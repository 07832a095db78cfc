package extract

import (
	"regexp"
	"sort"
)

// fqdnPattern matches dotted hostnames whose final label is alphabetic.
var fqdnPattern = regexp.MustCompile(`\b(?:[a-z0-9]+(?:-[a-z0-9]+)*\.)+[a-z]{2,}\b`)

// DomainSet is an unordered, deduplicated collection of hostnames.
type DomainSet map[string]struct{}

// Add inserts every domain into the set.
func (s DomainSet) Add(domains ...string) {
	for _, d := range domains {
		s[d] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (s DomainSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ExtractDomains scans each text independently and returns the union of
// every FQDN-shaped substring found. Matches are kept exactly as written.
func ExtractDomains(texts ...string) DomainSet {
	set := make(DomainSet)
	for _, text := range texts {
		set.Add(fqdnPattern.FindAllString(text, -1)...)
	}
	return set
}
