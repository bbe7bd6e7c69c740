// Package interpret turns free text or an image into a validated event
// using a completion service.
package interpret

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"postcal/internal/apperr"
	"postcal/internal/llm"
	appLog "postcal/internal/log"
	"postcal/internal/model"
	"postcal/internal/timerange"
)

// Options configures an Interpreter.
type Options struct {
	Text   llm.Completer
	Vision llm.Completer

	// Location is used for timestamps without an offset and for the
	// reference time in prompts. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Interpreter calls the completion service exactly once per request and
// never retries on a bad answer.
type Interpreter struct {
	text   llm.Completer
	vision llm.Completer
	loc    *time.Location
	now    func() time.Time
}

func New(opts Options) *Interpreter {
	in := &Interpreter{
		text:   opts.Text,
		vision: opts.Vision,
		loc:    opts.Location,
		now:    opts.Now,
	}
	if in.loc == nil {
		in.loc = time.UTC
	}
	if in.now == nil {
		in.now = time.Now
	}
	return in
}

// FromText interprets text. postContext is optional framing such as the
// author of the post the text came from.
func (in *Interpreter) FromText(ctx context.Context, text, postContext string) (model.Event, error) {
	const op = "interpret.text"
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Event{}, apperr.New(apperr.KindInvalidInput, op, "text is empty")
	}
	if in.text == nil {
		return model.Event{}, apperr.New(apperr.KindInterpretationFailed, op, "no text model configured")
	}

	completion, err := in.text.Complete(ctx, llm.Request{
		System:      textSystemPrompt(in.now(), in.loc),
		Prompt:      textUserPrompt(text, strings.TrimSpace(postContext)),
		Temperature: 0.3,
	})
	if err != nil {
		return model.Event{}, apperr.Wrap(apperr.KindInterpretationFailed, op, err)
	}
	return in.toEvent(op, completion)
}

// FromImage interprets a poster, flyer or screenshot. An empty MIMEType is
// sniffed from the bytes.
func (in *Interpreter) FromImage(ctx context.Context, img llm.Image) (model.Event, error) {
	const op = "interpret.image"
	if len(img.Data) == 0 {
		return model.Event{}, apperr.New(apperr.KindInvalidInput, op, "image is empty")
	}
	if img.MIMEType == "" {
		img.MIMEType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(img.MIMEType, "image/") {
		return model.Event{}, apperr.Newf(apperr.KindInvalidInput, op, "not an image: %s", img.MIMEType)
	}
	if in.vision == nil {
		return model.Event{}, apperr.New(apperr.KindInterpretationFailed, op, "no vision model configured")
	}

	completion, err := in.vision.Complete(ctx, llm.Request{
		Prompt:      imagePrompt(in.now(), in.loc),
		Image:       &img,
		Temperature: 0.2,
	})
	if err != nil {
		return model.Event{}, apperr.Wrap(apperr.KindInterpretationFailed, op, err)
	}
	return in.toEvent(op, completion)
}

// toEvent is the boundary between the untrusted completion and Event.
func (in *Interpreter) toEvent(op, completion string) (model.Event, error) {
	var fields model.RawEventFields
	if err := llm.DecodeJSON(completion, &fields); err != nil {
		appLog.Warn("completion was not JSON", "op", op, "completion", clip(completion, 200))
		return model.Event{}, apperr.Wrap(apperr.KindInvalidResponse, op, err)
	}
	return Validate(op, fields, in.loc)
}

// Validate promotes raw fields to an Event. Missing title, startDateTime or
// endDateTime is invalid_response; unreadable dates are invalid_date.
func Validate(op string, fields model.RawEventFields, loc *time.Location) (model.Event, error) {
	title := strings.TrimSpace(fields.String("title"))
	startRaw := strings.TrimSpace(fields.String("startDateTime"))
	endRaw := strings.TrimSpace(fields.String("endDateTime"))

	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if startRaw == "" {
		missing = append(missing, "startDateTime")
	}
	if endRaw == "" {
		missing = append(missing, "endDateTime")
	}
	if len(missing) > 0 {
		return model.Event{}, apperr.Newf(apperr.KindInvalidResponse, op, "missing %s", strings.Join(missing, ", "))
	}

	iv, err := timerange.Normalize(startRaw, endRaw, loc)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		Title:       title,
		Start:       iv.Start,
		End:         iv.End,
		Location:    strings.TrimSpace(fields.String("location")),
		Description: strings.TrimSpace(fields.String("description")),
	}, nil
}

var dataURIPrefix = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,`)

// ErrBadImagePayload is returned when an image payload is not base64.
var ErrBadImagePayload = errors.New("image payload is not valid base64")

// DecodeImage accepts base64 image data, optionally as a data: URI, and
// returns the bytes with the MIME type from the URI or sniffed.
func DecodeImage(payload string) (llm.Image, error) {
	payload = strings.TrimSpace(payload)
	var mime string
	if m := dataURIPrefix.FindStringSubmatch(payload); m != nil {
		mime = m[1]
		payload = payload[len(m[0]):]
	}
	if payload == "" {
		return llm.Image{}, apperr.New(apperr.KindInvalidInput, "interpret.image", "image is empty")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return llm.Image{}, apperr.Wrap(apperr.KindInvalidInput, "interpret.image", ErrBadImagePayload)
		}
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return llm.Image{Data: data, MIMEType: mime}, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
