package ics

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "postcal/internal/log"
)

// ParsedEvent is the view of a VEVENT read back from an iCalendar body.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string

	Start time.Time
	End   time.Time
	Stamp time.Time
}

// Decode parses an iCalendar payload and returns its first VEVENT.
//
// golang-ical unfolds lines and unescapes TEXT values, so property values
// are used as parsed.
func Decode(body []byte) (ParsedEvent, error) {
	if len(body) == 0 {
		return ParsedEvent{}, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "bytes", len(body))
		return ParsedEvent{}, err
	}

	events := cal.Events()
	if len(events) == 0 {
		return ParsedEvent{}, errors.New("no VEVENT in calendar")
	}
	if len(events) > 1 {
		appLog.Debug("ics payload has several events; using the first", "event_count", len(events))
	}
	return parseVEvent(events[0])
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, fmt.Errorf("DTEND: %w", err)
	}
	out.Start = start.UTC()
	out.End = end.UTC()

	if p := ve.GetProperty("DTSTAMP"); p != nil {
		if t, err := time.Parse(UTCLayout, p.Value); err == nil {
			out.Stamp = t
		}
	}

	return out, nil
}
