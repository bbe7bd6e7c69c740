package calendar

import (
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcal/internal/ics"
	"postcal/internal/model"
)

var datesPattern = regexp.MustCompile(`^\d{8}T\d{6}Z/\d{8}T\d{6}Z$`)

func fixedGenerator() *Generator {
	return NewGenerator(Options{
		Now:   func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string { return "fixed" },
	})
}

func sampleEvent() model.Event {
	return model.Event{
		Title:       "Rooftop Jazz Night",
		Start:       time.Date(2024, 7, 12, 19, 30, 0, 0, time.UTC),
		End:         time.Date(2024, 7, 12, 22, 0, 0, 0, time.UTC),
		Location:    "Skyline Bar, 12 High St",
		Description: "Live quartet & drinks",
	}
}

func TestGoogleURLExact(t *testing.T) {
	got := GoogleURL(sampleEvent(), "https://www.instagram.com/p/abc123")

	want := "https://calendar.google.com/calendar/render?action=TEMPLATE" +
		"&text=Rooftop+Jazz+Night" +
		"&dates=20240712T193000Z%2F20240712T220000Z" +
		"&details=Live+quartet+%26+drinks%0A%0ASource%3A+https%3A%2F%2Fwww.instagram.com%2Fp%2Fabc123" +
		"&location=Skyline+Bar%2C+12+High+St"
	assert.Equal(t, want, got)
}

func TestGoogleDatesPattern(t *testing.T) {
	zones := []string{"UTC", "Asia/Seoul", "America/Los_Angeles"}
	for _, name := range zones {
		loc, err := time.LoadLocation(name)
		require.NoError(t, err)

		ev := sampleEvent()
		ev.Start = time.Date(2031, 1, 2, 3, 4, 5, 0, loc)
		ev.End = ev.Start.Add(90 * time.Minute)

		u, err := url.Parse(GoogleURL(ev, ""))
		require.NoError(t, err)
		dates := u.Query().Get("dates")
		assert.Regexp(t, datesPattern, dates, name)

		wantStart := ev.Start.UTC().Format("20060102T150405Z")
		assert.True(t, strings.HasPrefix(dates, wantStart), "%s: %s", name, dates)
	}
}

func TestGoogleOmitsEmptyParams(t *testing.T) {
	ev := sampleEvent()
	ev.Description = ""
	ev.Location = ""

	u, err := url.Parse(GoogleURL(ev, ""))
	require.NoError(t, err)
	q := u.Query()
	assert.False(t, q.Has("details"))
	assert.False(t, q.Has("location"))
	assert.Equal(t, "TEMPLATE", q.Get("action"))
	assert.Equal(t, "Rooftop Jazz Night", q.Get("text"))
}

func TestOutlookURL(t *testing.T) {
	got := OutlookURL(sampleEvent(), "")

	assert.True(t, strings.HasPrefix(got,
		"https://outlook.live.com/calendar/0/deeplink/compose?path=%2Fcalendar%2Faction%2Fcompose&rru=addevent&subject="))

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "2024-07-12T19:30:00.000Z", q.Get("startdt"))
	assert.Equal(t, "2024-07-12T22:00:00.000Z", q.Get("enddt"))
	assert.Equal(t, "Live quartet & drinks", q.Get("body"))
	assert.Equal(t, "Skyline Bar, 12 High St", q.Get("location"))
	assert.False(t, strings.Contains(got, "dates="))
}

func TestComposeDescription(t *testing.T) {
	tests := []struct {
		name   string
		desc   string
		source string
		want   string
	}{
		{"both", "Bring a friend", "https://x/p/1", "Bring a friend\n\nSource: https://x/p/1"},
		{"source only", "", "https://x/p/1", "Source: https://x/p/1"},
		{"description only", "Bring a friend", "", "Bring a friend"},
		{"neither", "  ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeDescription(tt.desc, tt.source))
		})
	}
}

func TestICSBody(t *testing.T) {
	body := fixedGenerator().ICS(sampleEvent(), "https://www.instagram.com/p/abc123")

	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//postcal//EN\r\n"))
	assert.Contains(t, body, "DTSTART:20240712T193000Z\r\n")
	assert.Contains(t, body, "DTEND:20240712T220000Z\r\n")
	assert.Contains(t, body, "DTSTAMP:20240501T120000Z\r\n")
	assert.Contains(t, body, "UID:1714564800000-fixed@postcal\r\n")
	assert.Contains(t, body, `LOCATION:Skyline Bar\, 12 High St`)
	assert.True(t, strings.HasSuffix(body, "END:VEVENT\r\nEND:VCALENDAR\r\n"))

	// The description line is longer than 75 octets and arrives folded.
	assert.Contains(t, body, "DESCRIPTION:Live quartet & drinks\\n\\nSource: https://www.instagram.com/p/ab\r\n c123\r\n")
	for _, line := range strings.Split(strings.TrimSuffix(body, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), 75, "line %q", line)
	}

	got, err := ics.Decode([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Live quartet & drinks\n\nSource: https://www.instagram.com/p/abc123", got.Description)
	assert.Equal(t, "Skyline Bar, 12 High St", got.Location)
}

func TestICSOmitsBlankOptionalLines(t *testing.T) {
	ev := sampleEvent()
	ev.Description = ""
	ev.Location = ""
	body := fixedGenerator().ICS(ev, "")

	assert.NotContains(t, body, "DESCRIPTION")
	assert.NotContains(t, body, "LOCATION")
}

func TestICSUIDUniquePerGeneration(t *testing.T) {
	g := NewGenerator(Options{})
	a, err := ics.Decode([]byte(g.ICS(sampleEvent(), "")))
	require.NoError(t, err)
	b, err := ics.Decode([]byte(g.ICS(sampleEvent(), "")))
	require.NoError(t, err)

	assert.NotEqual(t, a.UID, b.UID)
	assert.True(t, strings.HasSuffix(a.UID, "@postcal"))
}

func TestAppleRoundTrip(t *testing.T) {
	ev := sampleEvent()
	ev.Start = time.Date(2024, 7, 12, 19, 30, 15, 999, time.UTC)
	ev.Description = "Live quartet, drinks; dancing\nDoors at 7"
	source := "https://www.instagram.com/reel/xyz"

	set := fixedGenerator().Generate(ev, source)
	got, err := ics.Decode([]byte(set.Apple))
	require.NoError(t, err)

	assert.Equal(t, ev.Title, got.Summary)
	assert.Equal(t, ev.Location, got.Location)
	assert.True(t, got.Start.Equal(ev.Start.Truncate(time.Second)), "start %s", got.Start)
	assert.True(t, got.End.Equal(ev.End), "end %s", got.End)

	desc, found := strings.CutSuffix(got.Description, "\n\nSource: "+source)
	assert.True(t, found, "missing provenance in %q", got.Description)
	assert.Equal(t, ev.Description, desc)
}

func TestAppleDataURL(t *testing.T) {
	got := AppleDataURL("BEGIN:VCALENDAR\r\nSUMMARY:A b\r\n")
	assert.Equal(t, "data:text/calendar;charset=utf8,BEGIN%3AVCALENDAR%0D%0ASUMMARY%3AA%20b%0D%0A", got)
}

func TestGenerateIsDeterministicForURLs(t *testing.T) {
	g := fixedGenerator()
	a := g.Generate(sampleEvent(), "https://x/p/1")
	b := g.Generate(sampleEvent(), "https://x/p/1")
	assert.Equal(t, a, b)
}
