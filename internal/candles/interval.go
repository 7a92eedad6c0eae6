package candles

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval converts an interval label like "1m", "5m" or "1h" into its
// width. The label doubles as the interval field stored on candle documents.
func ParseInterval(label string) (time.Duration, error) {
	label = strings.TrimSpace(label)
	if len(label) < 2 {
		return 0, fmt.Errorf("unsupported interval %q", label)
	}

	n, err := strconv.Atoi(label[:len(label)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported interval %q", label)
	}

	switch label[len(label)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval %q", label)
	}
}

// BucketStart floors the instant onto the interval grid in UTC, so buckets
// are stable regardless of when the aggregator runs.
func BucketStart(ts time.Time, width time.Duration) time.Time {
	seconds := int64(width / time.Second)
	epoch := ts.Unix()
	return time.Unix(epoch-epoch%seconds, 0).UTC()
}

// Buckets returns the aligned bucket-start times from `from` up to (but not
// including) `until`.
func Buckets(from, until time.Time, width time.Duration) []time.Time {
	var out []time.Time
	for t := BucketStart(from, width); t.Before(until); t = t.Add(width) {
		out = append(out, t)
	}
	return out
}
