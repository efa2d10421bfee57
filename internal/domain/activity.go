// Package domain defines the canonical records and error taxonomy shared
// across the sync pipeline.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Activity is the canonical record produced by the source-boundary
// decoders. StartTime carries the raw timestamp exactly as received;
// callers normalize it with ParseStartTime when they need a point in time.
type Activity struct {
	ID        string
	Name      string
	StartTime string
	FileID    string
}

// DisplayName returns a printable name for log output. It must not be fed
// into duplicate matching: an absent name selects the time-only match path.
func (a Activity) DisplayName() string {
	if a.Name == "" {
		return "Unknown Activity"
	}
	return a.Name
}

// UploadReceipt is the destination acknowledgment for an uploaded file.
type UploadReceipt struct {
	UploadID int64
}

// millisecondThreshold separates epoch seconds from epoch milliseconds:
// anything above it is not a plausible second count.
const millisecondThreshold = 100_000_000_000

// startTimeLayouts are tried most- to least-specific. A trailing "Z" here
// is a literal byte, not a zone marker; all layout matches produce UTC.
var startTimeLayouts = []string{
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseStartTime normalizes the loosely-encoded start timestamps the
// platforms emit: numeric epoch first (milliseconds when the magnitude
// rules out seconds), then the fixed layout list, then a general RFC 3339
// parse with Z rewritten to an explicit offset. Zone-less inputs are
// interpreted as UTC so timestamps from both platforms compare uniformly.
func ParseStartTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty start time")
	}

	if epoch, err := strconv.ParseFloat(raw, 64); err == nil {
		if epoch > millisecondThreshold {
			return time.UnixMilli(int64(epoch)).UTC(), nil
		}
		return time.Unix(int64(epoch), 0).UTC(), nil
	}

	trimmed := strings.ReplaceAll(raw, "+00:00", "")
	for _, layout := range startTimeLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, nil
		}
	}

	if ts, err := time.Parse(time.RFC3339, strings.ReplaceAll(raw, "Z", "+00:00")); err == nil {
		return ts, nil
	}

	return time.Time{}, fmt.Errorf("unparseable start time %q", raw)
}
