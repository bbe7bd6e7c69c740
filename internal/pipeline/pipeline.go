// Package pipeline wires extraction, interpretation and artifact
// generation into the three conversion entry points.
package pipeline

import (
	"context"
	"strings"
	"time"

	"postcal/internal/apperr"
	"postcal/internal/llm"
	appLog "postcal/internal/log"
	"postcal/internal/metrics"
	"postcal/internal/model"
)

// Source labels the entry point a conversion started from.
type Source string

const (
	SourceURL   Source = "url"
	SourceText  Source = "text"
	SourceImage Source = "image"
)

type Extractor interface {
	Extract(ctx context.Context, rawURL string) (model.RawPost, error)
}

type Interpreter interface {
	FromText(ctx context.Context, text, postContext string) (model.Event, error)
	FromImage(ctx context.Context, img llm.Image) (model.Event, error)
}

type Generator interface {
	Generate(ev model.Event, sourceURL string) model.ArtifactSet
}

// Result is a completed conversion. Nothing partial is ever returned: a
// conversion either yields a full Result or an error.
type Result struct {
	Source    Source            `json:"source"`
	Event     model.Event       `json:"event"`
	Artifacts model.ArtifactSet `json:"artifacts"`
	SourceURL string            `json:"source_url,omitempty"`
	// Post is set for URL conversions.
	Post *model.RawPost `json:"post,omitempty"`
}

// Input carries exactly one of URL, Text or Image.
type Input struct {
	URL   string
	Text  string
	Image *llm.Image
}

// Orchestrator runs each request once through its stages; no stage is
// retried.
type Orchestrator struct {
	extractor   Extractor
	interpreter Interpreter
	generator   Generator
	metrics     *metrics.Metrics
}

func New(e Extractor, i Interpreter, g Generator, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{extractor: e, interpreter: i, generator: g, metrics: m}
}

// Run dispatches on whichever single field of in is set.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	set := 0
	if strings.TrimSpace(in.URL) != "" {
		set++
	}
	if strings.TrimSpace(in.Text) != "" {
		set++
	}
	if in.Image != nil {
		set++
	}
	switch {
	case set == 0:
		return Result{}, apperr.New(apperr.KindInvalidInput, "pipeline", "one of url, text or image is required")
	case set > 1:
		return Result{}, apperr.New(apperr.KindInvalidInput, "pipeline", "only one of url, text or image may be given")
	}

	switch {
	case strings.TrimSpace(in.URL) != "":
		return o.FromURL(ctx, in.URL)
	case in.Image != nil:
		return o.fromImage(ctx, *in.Image)
	default:
		return o.FromText(ctx, in.Text)
	}
}

// FromURL extracts the post, interprets its caption and renders the event
// with the normalized post URL as provenance.
func (o *Orchestrator) FromURL(ctx context.Context, rawURL string) (res Result, err error) {
	start := time.Now()
	defer func() { o.finish(SourceURL, start, err) }()

	post, err := o.extractor.Extract(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(post.Caption) == "" {
		return Result{}, apperr.New(apperr.KindExtractionFailed, "pipeline.url", "no text content in post")
	}

	ev, err := o.interpreter.FromText(ctx, post.Caption, postContext(post))
	if err != nil {
		return Result{}, err
	}

	return Result{
		Source:    SourceURL,
		Event:     ev,
		Artifacts: o.generator.Generate(ev, post.SourceURL),
		SourceURL: post.SourceURL,
		Post:      &post,
	}, nil
}

func (o *Orchestrator) FromText(ctx context.Context, text string) (res Result, err error) {
	start := time.Now()
	defer func() { o.finish(SourceText, start, err) }()

	ev, err := o.interpreter.FromText(ctx, text, "")
	if err != nil {
		return Result{}, err
	}
	return Result{
		Source:    SourceText,
		Event:     ev,
		Artifacts: o.generator.Generate(ev, ""),
	}, nil
}

// FromImage interprets raw image bytes; the MIME type is sniffed.
func (o *Orchestrator) FromImage(ctx context.Context, data []byte) (Result, error) {
	return o.fromImage(ctx, llm.Image{Data: data})
}

func (o *Orchestrator) fromImage(ctx context.Context, img llm.Image) (res Result, err error) {
	start := time.Now()
	defer func() { o.finish(SourceImage, start, err) }()

	ev, err := o.interpreter.FromImage(ctx, img)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Source:    SourceImage,
		Event:     ev,
		Artifacts: o.generator.Generate(ev, ""),
	}, nil
}

func (o *Orchestrator) finish(source Source, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		kind := apperr.KindOf(err)
		o.metrics.ObservePipeline(string(source), string(kind))
		appLog.Warn("conversion failed", "source", source, "kind", kind, "duration", elapsed, "err", err)
		return
	}
	o.metrics.ObservePipeline(string(source), metrics.OutcomeSuccess)
	appLog.Info("conversion completed", "source", source, "duration", elapsed)
}

func postContext(post model.RawPost) string {
	author := strings.TrimSpace(post.Author)
	if author == "" {
		author = "unknown"
	}
	return "Post by " + author
}
