package dcs

import (
	"fmt"
	"time"
)

// Wire layouts accepted for server-returned and caller-supplied time
// values. The server emits naive ISO timestamps that are always UTC.
const (
	layoutDate      = "2006-01-02"
	layoutNaive     = "2006-01-02T15:04:05"
	layoutNaiveFrac = "2006-01-02T15:04:05.999999999"
)

// NormalizeTime converts a caller-supplied time value into a canonical
// UTC instant. Accepted forms:
//
//   - time.Time: converted to UTC preserving the absolute instant
//   - "2006-01-02": midnight UTC of that date
//   - "2006-01-02T15:04:05[.ffffff]": interpreted as already UTC
//   - RFC 3339 with a zone offset: converted to UTC
//
// Anything else fails with ErrInvalidTime.
func NormalizeTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidTime)
		}
		return t.UTC(), nil
	case string:
		return parseWireTime(t)
	default:
		return time.Time{}, fmt.Errorf("%w: %T", ErrInvalidTime, v)
	}
}

// parseWireTime decodes a timestamp string from the server or caller.
// Timestamps without a zone are taken as UTC; no local-timezone
// inference is performed.
func parseWireTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{layoutNaiveFrac, layoutNaive, layoutDate} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// formatQueryTime renders an instant the way the server expects query
// parameters: naive ISO, implicitly UTC.
func formatQueryTime(t time.Time) string {
	return t.UTC().Format(layoutNaive)
}
