package model

import "time"

// RawPost is the unvalidated content scraped from a social post URL.
// It is produced by the extraction chain and consumed right away by the
// interpreter; it is never stored.
type RawPost struct {
	SourceURL    string `json:"source_url"`
	Caption      string `json:"caption"`
	Author       string `json:"author,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// Strategy names the extraction strategy that produced the post.
	Strategy string `json:"strategy,omitempty"`
}

// RawEventFields is the untyped bag returned by the interpretation service.
// Nothing in it is trusted until it has been validated and normalized.
type RawEventFields map[string]any

// String returns the value stored under key when it is a string, or "".
func (f RawEventFields) String(key string) string {
	if f == nil {
		return ""
	}
	s, _ := f[key].(string)
	return s
}

// Event is the normalized calendar event. End is always after Start.
// Start/End are absolute instants; formatting to a zone happens at render time.
type Event struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// ArtifactSet holds the provider-specific renderings of one Event.
type ArtifactSet struct {
	// Google is a calendar.google.com template URL.
	Google string `json:"google"`
	// Outlook is an outlook.live.com compose deeplink.
	Outlook string `json:"outlook"`
	// Apple is a complete iCalendar (.ics) body.
	Apple string `json:"apple"`
}
