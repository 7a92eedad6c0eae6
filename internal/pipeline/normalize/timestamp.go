package normalize

import (
	"strconv"
	"strings"
	"time"
)

// Epoch values at or above this threshold are interpreted as milliseconds.
// 1e12 seconds is 33658 CE, 1e12 milliseconds is September 2001.
const millisThreshold = 1e12

// ParseTimestamp accepts the timestamp encodings seen across upstream
// payloads: epoch seconds, epoch milliseconds, numeric strings of either,
// and ISO-8601 strings with or without a trailing UTC marker. The result is
// always UTC.
func ParseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return fromEpoch(t), true
	case int64:
		return fromEpoch(float64(t)), true
	case int:
		return fromEpoch(float64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f), true
		}
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func fromEpoch(f float64) time.Time {
	if f >= millisThreshold {
		ms := int64(f)
		return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// FormatTimestamp renders the canonical UTC ISO-8601 form stored in
// documents and used inside identities.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
