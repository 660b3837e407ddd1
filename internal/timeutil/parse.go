// Package timeutil handles the instrument's timestamp formats.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// recordLayout is the timestamp format used by every instrument log stream:
// UTC wall time with millisecond precision, optionally suffixed with " Z".
const recordLayout = "2006-01-02 15:04:05.000"

// ParseTimestamp parses an instrument timestamp into UTC seconds with
// millisecond precision.
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSuffix(s, " Z")

	t, err := time.ParseInLocation(recordLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("cannot parse timestamp %q: %w", s, err)
	}
	return float64(t.UnixMilli()) / 1000.0, nil
}

// FormatSeconds renders a duration in seconds with up to six decimals,
// trailing zeros trimmed, matching the acquisition-time field of the
// clusterlog header.
func FormatSeconds(seconds float64) string {
	s := fmt.Sprintf("%.6f", seconds)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
