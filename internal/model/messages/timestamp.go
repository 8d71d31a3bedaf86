package messages

import (
	"strings"
	"time"
)

// parseTimestamp accepts RFC3339 strings and epoch milliseconds.
// Anything else (missing, null, garbage) yields the zero time.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}

// OrNow returns t, or now when t is the zero time.
func OrNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now.UTC()
	}
	return t
}
