package dashboard

import (
	"regexp"
	"sort"
)

var hostnamePattern = regexp.MustCompile(`^(.*://)?(www\.)?([^:/]+)[:/]?.*`)

// Hostname strips an optional scheme, a leading "www." and anything after
// the host from domain. It returns "" when nothing host-like remains.
func Hostname(domain string) string {
	m := hostnamePattern.FindStringSubmatch(domain)
	if m == nil {
		return ""
	}
	return m[3]
}

// primaryHostname derives an issue's hostname from its first valid domain.
func primaryHostname(validDomains []string) string {
	if len(validDomains) == 0 {
		return ""
	}
	return Hostname(validDomains[0])
}

// countable reports whether host may appear in a ranking. Empty hosts and
// the literal "None" left by older ingesters are excluded.
func countable(host string) bool {
	return host != "" && host != "None"
}

// HostCount is a hostname with the number of issues reported against it.
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

// topHosts returns the n hosts with the highest counts, highest first.
// Ties are broken by host name so output does not depend on map order.
func topHosts(counts map[string]int, n int) []HostCount {
	out := make([]HostCount, 0, len(counts))
	for host, c := range counts {
		out = append(out, HostCount{Host: host, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Host < out[j].Host
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
