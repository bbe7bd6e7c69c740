// Package timerange validates and repairs start/end timestamp pairs.
package timerange

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"postcal/internal/apperr"
)

// RepairDuration is the length given to an interval whose end does not
// come after its start.
const RepairDuration = time.Hour

// Interval is an ordered pair of UTC instants. End is always after Start
// for values returned by Normalize.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Normalize parses both timestamps and returns an ordered interval.
//
//   - Either value failing to parse yields an invalid_date error.
//   - If end <= start, end is silently set to start + RepairDuration.
//   - Timestamps without a zone are read in loc (UTC when loc is nil).
//
// Both instants are returned in UTC.
func Normalize(startRaw, endRaw string, loc *time.Location) (Interval, error) {
	start, err := Parse(startRaw, loc)
	if err != nil {
		return Interval{}, apperr.Wrap(apperr.KindInvalidDate, "timerange.start", err)
	}
	end, err := Parse(endRaw, loc)
	if err != nil {
		return Interval{}, apperr.Wrap(apperr.KindInvalidDate, "timerange.end", err)
	}
	return Repair(Interval{Start: start, End: end}), nil
}

// Repair enforces End > Start. Already valid intervals are returned as-is.
func Repair(iv Interval) Interval {
	if !iv.End.After(iv.Start) {
		iv.End = iv.Start.Add(RepairDuration)
	}
	return iv
}

// Parse reads a single timestamp. RFC 3339 is tried first; other common
// layouts ("2024-05-02 10:00", "May 2, 2024 10am", ...) go through dateparse.
func Parse(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}

	t, err := dateparse.ParseIn(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}
