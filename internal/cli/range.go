package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIssueRange parses a listing window written as "START-END" or
// "START:END" into its bounds. END is exclusive, so "100-200" covers
// positions 100 through 199.
//
// Examples:
//   - "0-100"    → 0, 100
//   - "95:205"   → 95, 205
//   - " 10 - 20" → 10, 20
func ParseIssueRange(s string) (start, end int, err error) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, "-:")
	if idx <= 0 || idx == len(s)-1 {
		return 0, 0, fmt.Errorf("invalid range %q: want START-END", s)
	}

	startStr := strings.TrimSpace(s[:idx])
	endStr := strings.TrimSpace(s[idx+1:])

	start, err = strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: start value %q is not a valid number", s, startStr)
	}
	end, err = strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: end value %q is not a valid number", s, endStr)
	}

	if err := checkRange(start, end); err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return start, end, nil
}

func checkRange(start, end int) error {
	if start < 0 {
		return fmt.Errorf("start (%d) must not be negative", start)
	}
	if start > end {
		return fmt.Errorf("start (%d) is greater than end (%d)", start, end)
	}
	return nil
}
