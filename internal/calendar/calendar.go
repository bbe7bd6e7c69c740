// Package calendar renders a normalized event into provider-specific
// calendar artifacts: a Google Calendar template URL, an Outlook compose
// deeplink and an iCalendar body for Apple Calendar.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"postcal/internal/ics"
	"postcal/internal/model"
)

const (
	googleBaseURL  = "https://calendar.google.com/calendar/render"
	outlookBaseURL = "https://outlook.live.com/calendar/0/deeplink/compose"

	// outlookLayout matches JavaScript's Date.toISOString output.
	outlookLayout = "2006-01-02T15:04:05.000Z"

	DefaultProdID    = "-//postcal//EN"
	DefaultUIDDomain = "postcal"
)

// Options configures a Generator. Zero values fall back to defaults.
type Options struct {
	ProdID    string
	UIDDomain string

	// Now stamps DTSTAMP and seeds the UID. Defaults to time.Now.
	Now func() time.Time
	// NewID returns the random part of the UID. Defaults to uuid.NewString.
	NewID func() string
}

// Generator turns events into artifact sets. It holds no mutable state.
type Generator struct {
	prodID    string
	uidDomain string
	now       func() time.Time
	newID     func() string
}

func NewGenerator(opts Options) *Generator {
	g := &Generator{
		prodID:    opts.ProdID,
		uidDomain: opts.UIDDomain,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if g.prodID == "" {
		g.prodID = DefaultProdID
	}
	if g.uidDomain == "" {
		g.uidDomain = DefaultUIDDomain
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	return g
}

// Generate renders all three artifacts. sourceURL, when non-empty, is
// appended to the description as a provenance line.
func (g *Generator) Generate(ev model.Event, sourceURL string) model.ArtifactSet {
	return model.ArtifactSet{
		Google:  GoogleURL(ev, sourceURL),
		Outlook: OutlookURL(ev, sourceURL),
		Apple:   g.ICS(ev, sourceURL),
	}
}

// GoogleURL builds the calendar.google.com TEMPLATE link. Dates use the
// compact UTC form YYYYMMDDTHHMMSSZ/YYYYMMDDTHHMMSSZ.
func GoogleURL(ev model.Event, sourceURL string) string {
	q := queryBuilder{}
	q.add("action", "TEMPLATE")
	q.add("text", ev.Title)
	q.add("dates", ics.FormatUTC(ev.Start)+"/"+ics.FormatUTC(ev.End))
	q.addNonEmpty("details", ComposeDescription(ev.Description, sourceURL))
	q.addNonEmpty("location", ev.Location)
	return googleBaseURL + "?" + q.String()
}

// OutlookURL builds the outlook.live.com compose deeplink. Unlike Google,
// start and end use full ISO-8601 with milliseconds.
func OutlookURL(ev model.Event, sourceURL string) string {
	q := queryBuilder{}
	q.add("path", "/calendar/action/compose")
	q.add("rru", "addevent")
	q.add("subject", ev.Title)
	q.add("startdt", ev.Start.UTC().Format(outlookLayout))
	q.add("enddt", ev.End.UTC().Format(outlookLayout))
	q.addNonEmpty("body", ComposeDescription(ev.Description, sourceURL))
	q.addNonEmpty("location", ev.Location)
	return outlookBaseURL + "?" + q.String()
}

// ICS renders the iCalendar body. The provenance line is joined with a
// blank line, which the encoder escapes to `\n\n`.
func (g *Generator) ICS(ev model.Event, sourceURL string) string {
	now := g.now()
	return ics.Encode(g.prodID, ics.EventData{
		UID:         fmt.Sprintf("%d-%s@%s", now.UnixMilli(), g.newID(), g.uidDomain),
		Stamp:       now,
		Start:       ev.Start,
		End:         ev.End,
		Summary:     ev.Title,
		Description: ComposeDescription(ev.Description, sourceURL),
		Location:    ev.Location,
	})
}

// ComposeDescription appends "Source: <url>" separated by a blank line.
// Either part may be empty; the separator only appears between two parts.
func ComposeDescription(description, sourceURL string) string {
	description = strings.TrimSpace(description)
	if sourceURL == "" {
		return description
	}
	provenance := "Source: " + sourceURL
	if description == "" {
		return provenance
	}
	return description + "\n\n" + provenance
}

// AppleDataURL wraps an iCalendar body as a data: URL, the form browsers can
// open directly to trigger a calendar import.
func AppleDataURL(body string) string {
	return "data:text/calendar;charset=utf8," + encodeURIComponent(body)
}

// queryBuilder keeps parameters in insertion order; url.Values sorts keys.
type queryBuilder struct {
	parts []string
}

func (q *queryBuilder) add(key, value string) {
	q.parts = append(q.parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q *queryBuilder) addNonEmpty(key, value string) {
	if value == "" {
		return
	}
	q.add(key, value)
}

func (q *queryBuilder) String() string {
	return strings.Join(q.parts, "&")
}

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isURIUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
