package ics

import (
	"strings"
	"time"
	"unicode/utf8"
)

// UTCLayout is the compact UTC DATE-TIME form, e.g. 20240502T100000Z.
const UTCLayout = "20060102T150405Z"

// maxLineOctets is the content line limit from RFC 5545 §3.1, excluding CRLF.
const maxLineOctets = 75

const crlf = "\r\n"

// EventData carries the fields written into a single VEVENT.
type EventData struct {
	UID         string
	Stamp       time.Time
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Location    string
}

// FormatUTC renders t in UTCLayout.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(UTCLayout)
}

// Encode renders a VCALENDAR holding one VEVENT. Empty DESCRIPTION and
// LOCATION are omitted entirely. Lines are folded at 75 octets and every
// line, including the last, ends with CRLF.
func Encode(prodID string, ev EventData) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"DTSTART:" + FormatUTC(ev.Start),
		"DTEND:" + FormatUTC(ev.End),
		"SUMMARY:" + EscapeText(ev.Summary),
	}
	if ev.Description != "" {
		lines = append(lines, "DESCRIPTION:"+EscapeText(ev.Description))
	}
	if ev.Location != "" {
		lines = append(lines, "LOCATION:"+EscapeText(ev.Location))
	}
	lines = append(lines,
		"DTSTAMP:"+FormatUTC(ev.Stamp),
		"UID:"+ev.UID,
		"END:VEVENT",
		"END:VCALENDAR",
	)

	var b strings.Builder
	for _, l := range lines {
		writeFolded(&b, l)
	}
	return b.String()
}

// EscapeText applies RFC 5545 TEXT escaping: backslash, semicolon and comma
// are backslash-escaped, newlines become the two characters `\n`, CR is dropped.
func EscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case ';':
			b.WriteString(`\;`)
		case ',':
			b.WriteString(`\,`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnescapeText reverses EscapeText.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// writeFolded writes line with CRLF, splitting it into 75-octet chunks.
// Continuation lines start with a single space. Multi-byte runes are never
// split, and folds avoid landing next to a space so readers that trim
// whitespace while unfolding still recover the exact value.
func writeFolded(b *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		cut := foldPoint(line, limit)
		b.WriteString(line[:cut])
		b.WriteString(crlf)
		b.WriteByte(' ')
		line = line[cut:]
		// The leading space counts toward the next line's limit.
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString(crlf)
}

func foldPoint(line string, limit int) int {
	cut := limit
	for cut > 1 && (!utf8.RuneStart(line[cut]) || line[cut] == ' ' || line[cut-1] == ' ') {
		cut--
	}
	if cut > 1 {
		return cut
	}
	// Nothing but spaces nearby; settle for any rune boundary.
	cut = limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return cut
}
