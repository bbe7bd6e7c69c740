package interpret

import (
	"fmt"
	"strings"
	"time"
)

const outputContract = `Return a JSON object with:
- title: Event name/title (required)
- startDateTime: ISO 8601 date-time with UTC offset (required)
- endDateTime: ISO 8601 date-time with UTC offset (required, default to 1 hour after start if not specified)
- location: Physical or virtual location, as a full street address when one can be derived (optional)
- description: Brief description (optional)`

const sharedRules = `- For relative dates like "tomorrow" or "next Friday", calculate from the current date.
- If only a date is given (no time), use 10:00 AM.
- If no end time is given, end 1 hour after the start.
- If a range shares one AM/PM suffix, such as "12-6pm" or "8-11pm", both ends take that suffix.
- If no timezone is given, use %s.`

const jsonOnly = `IMPORTANT: Return ONLY the JSON object. Do not wrap it in markdown code blocks or backticks. No additional text.`

func referenceTime(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("Current date/time for reference: %s (%s)", now.In(loc).Format(time.RFC3339), loc)
}

func textSystemPrompt(now time.Time, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("You are an expert at extracting event information from social media posts and text.\n")
	b.WriteString("Extract calendar event details from the provided text.\n\n")
	b.WriteString(referenceTime(now, loc))
	b.WriteString("\n\n")
	b.WriteString(outputContract)
	b.WriteString("\n\nRules:\n")
	fmt.Fprintf(&b, sharedRules, loc)
	b.WriteString("\n- Extract location mentions: addresses, venue names, \"virtual\", \"zoom\".")
	b.WriteString("\n\n")
	b.WriteString(jsonOnly)
	return b.String()
}

func textUserPrompt(text, postContext string) string {
	if postContext != "" {
		return "Post context: " + postContext + "\n\nText to parse: " + text
	}
	return "Text to parse: " + text
}

func imagePrompt(now time.Time, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("You are an expert at extracting event information from images such as posters, flyers and screenshots.\n")
	b.WriteString("Extract calendar event details from the provided image. Read all visible text.\n\n")
	b.WriteString(referenceTime(now, loc))
	b.WriteString("\n\n")
	b.WriteString(outputContract)
	b.WriteString("\n\nRules:\n")
	fmt.Fprintf(&b, sharedRules, loc)
	b.WriteString("\n- Look for dates, times, venue names and addresses anywhere in the image.")
	b.WriteString("\n\n")
	b.WriteString(jsonOnly)
	return b.String()
}
