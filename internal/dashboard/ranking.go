package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/webcompat/webcompat-search/internal/fixtures"
)

// annotateHost appends the popularity rank of the site host belongs to.
func annotateHost(host string, ranks *fixtures.Ranks) string {
	if _, rank, ok := ranks.Lookup(host); ok {
		return host + " " + rank
	}
	return host
}

// RankedCounts is an ordered hostname → count mapping. It encodes as a JSON
// object whose keys keep their ranking order.
type RankedCounts []HostCount

// AnnotateRankings returns a copy of counts in which every host that equals,
// or is a subdomain of, a ranked site is renamed to "<host> <rank>". Other
// hosts, the counts and the order are copied unchanged.
func AnnotateRankings(counts []HostCount, ranks *fixtures.Ranks) RankedCounts {
	out := make(RankedCounts, len(counts))
	for i, hc := range counts {
		out[i] = HostCount{Host: annotateHost(hc.Host, ranks), Count: hc.Count}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (rc RankedCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, hc := range rc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(hc.Host)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", hc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
