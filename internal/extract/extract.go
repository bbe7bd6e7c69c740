// Package extract recovers the caption, author and thumbnail of a social
// post from its URL. Strategies are tried in order, cheapest first; the
// first one that succeeds wins.
package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"postcal/internal/apperr"
	appLog "postcal/internal/log"
	"postcal/internal/metrics"
	"postcal/internal/model"
)

var postURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?instagram\.com/p/[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?instagram\.com/reel/[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?instagram\.com/tv/[\w-]+`),
}

// ValidateURL reports whether raw looks like a post, reel or tv URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, p := range postURLPatterns {
		if p.MatchString(raw) {
			return nil
		}
	}
	return apperr.New(apperr.KindInvalidURL, "extract", "not a post, reel or tv URL")
}

// NormalizeURL drops the query string and a trailing slash.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSuffix(raw, "/")
}

// Strategy is one way of getting at a post's content. A strategy failing
// never aborts the chain.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, postURL string) (model.RawPost, error)
}

// Step pairs a strategy with its time budget.
type Step struct {
	Strategy Strategy
	Timeout  time.Duration
}

// Chain runs steps in order until one succeeds.
type Chain struct {
	steps   []Step
	metrics *metrics.Metrics
}

func NewChain(m *metrics.Metrics, steps ...Step) *Chain {
	return &Chain{steps: steps, metrics: m}
}

// Names lists the strategies in the order they are tried.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.steps))
	for _, s := range c.steps {
		names = append(names, s.Strategy.Name())
	}
	return names
}

// Extract validates and normalizes rawURL, then walks the chain. It fails
// with invalid_url before any strategy runs, and with extraction_failed
// once every strategy has failed.
func (c *Chain) Extract(ctx context.Context, rawURL string) (model.RawPost, error) {
	if err := ValidateURL(rawURL); err != nil {
		return model.RawPost{}, err
	}
	postURL := NormalizeURL(rawURL)
	if len(c.steps) == 0 {
		return model.RawPost{}, apperr.New(apperr.KindExtractionFailed, "extract", "no strategies configured")
	}

	var errs []error
	for _, step := range c.steps {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		name := step.Strategy.Name()
		post, elapsed, err := c.attempt(ctx, step, postURL)
		c.metrics.ObserveStrategy(name, err == nil, elapsed)
		if err != nil {
			appLog.Warn("extraction strategy failed", "strategy", name, "duration", elapsed, "url", postURL, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		appLog.Info("extraction strategy succeeded", "strategy", name, "duration", elapsed, "url", postURL)
		post.SourceURL = postURL
		post.Strategy = name
		return post, nil
	}

	return model.RawPost{}, apperr.Wrap(apperr.KindExtractionFailed, "extract", errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, step Step, postURL string) (model.RawPost, time.Duration, error) {
	sctx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	start := time.Now()
	post, err := step.Strategy.Extract(sctx, postURL)
	elapsed := time.Since(start)
	if err == nil && sctx.Err() != nil {
		// Finished but ignored the deadline; treat as a timeout.
		err = sctx.Err()
	}
	return post, elapsed, err
}
