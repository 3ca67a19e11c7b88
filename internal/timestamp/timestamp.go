// Package timestamp parses the raw timestamp strings held on events and tasks.
package timestamp

import (
	"errors"
	"strings"
	"time"
)

// EndOfDayMarker is how Canvas encodes "due at end of day" in UTC. It must be
// matched on the raw string; parsing first loses it after zone conversion.
const EndOfDayMarker = "23:59:59+00"

// Storage layout for timestamps this service writes. UTC renders as "+00:00",
// never "Z", so Canvas end-of-day values keep the marker.
const Layout = "2006-01-02T15:04:05-07:00"

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-07",
	"2006-01-02T15:04:05.999999-07",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var ErrEmpty = errors.New("timestamp: empty value")

// Parse accepts the ISO-8601 variants the store emits. Values without an
// offset are read as UTC; date-only values are midnight in loc (UTC if nil).
func Parse(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrEmpty
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}

// IsEndOfDay reports whether raw carries the Canvas end-of-day marker.
func IsEndOfDay(raw string) bool {
	return strings.Contains(raw, EndOfDayMarker)
}

// Format renders t in the storage layout, in UTC.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}
