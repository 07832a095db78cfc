// Package bugzilla queries a Bugzilla instance over its REST API.
package bugzilla

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultBaseURL is Mozilla's Bugzilla.
	DefaultBaseURL = "https://bugzilla.mozilla.org"

	// DefaultTimeout bounds a single REST call. Unlimited searches on BMO
	// can take a while to serialize.
	DefaultTimeout = 2 * time.Minute
)

// Open statuses, in Bugzilla's workflow order.
const (
	StatusUnconfirmed = "UNCONFIRMED"
	StatusNew         = "NEW"
	StatusAssigned    = "ASSIGNED"
	StatusReopened    = "REOPENED"
)

// OpenStatuses lists the statuses of bugs that still need work.
var OpenStatuses = []string{StatusUnconfirmed, StatusNew, StatusAssigned, StatusReopened}

// IsOpenStatus reports whether status is one of OpenStatuses.
func IsOpenStatus(status string) bool {
	for _, s := range OpenStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Bug is the subset of a Bugzilla bug the reports use.
type Bug struct {
	ID             int      `json:"id"`
	Summary        string   `json:"summary"`
	Product        string   `json:"product"`
	Component      string   `json:"component"`
	Status         string   `json:"status"`
	Resolution     string   `json:"resolution"`
	Whiteboard     string   `json:"whiteboard"`
	Keywords       []string `json:"keywords"`
	CreationTime   Time     `json:"creation_time"`
	LastResolved   Time     `json:"cf_last_resolved"`
	LastChangeTime Time     `json:"last_change_time"`
	SeeAlso        []string `json:"see_also"`
}

// HasKeyword reports whether the bug carries keyword.
func (b Bug) HasKeyword(keyword string) bool {
	for _, k := range b.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// Time is a Bugzilla timestamp. Bugzilla emits RFC 3339 for core fields and
// "YYYY-MM-DD hh:mm:ss" for some custom fields; null or empty decodes to
// the zero Time.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses any of the layouts Bugzilla is known to emit, as UTC.
func ParseTime(s string) (Time, error) {
	if s == "" {
		return Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Time{t.UTC()}, nil
		}
	}
	return Time{}, fmt.Errorf("unrecognized bugzilla time %q", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero Time.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// searchResponse is the body of GET /rest/bug.
type searchResponse struct {
	Bugs     []Bug `json:"bugs"`
	BugCount *int  `json:"bug_count,omitempty"`
}

// errorResponse is the body Bugzilla returns with "error": true.
type errorResponse struct {
	Error   bool   `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
