package extract

import (
	"context"
	"strings"
	"time"

	"postcal/internal/model"
)

// Renderer returns the HTML of a page after scripts have run.
// *browser.Pool implements it.
type Renderer interface {
	Render(ctx context.Context, url, selector string, wait time.Duration) (string, error)
}

// BrowserStrategy renders the page headlessly and reads the same tags as
// HTMLStrategy. It waits up to metaWait for og:description to show up.
type BrowserStrategy struct {
	renderer Renderer
	metaWait time.Duration
}

func NewBrowserStrategy(r Renderer, metaWait time.Duration) *BrowserStrategy {
	return &BrowserStrategy{renderer: r, metaWait: metaWait}
}

func (s *BrowserStrategy) Name() string { return "browser" }

func (s *BrowserStrategy) Extract(ctx context.Context, postURL string) (model.RawPost, error) {
	html, err := s.renderer.Render(ctx, postURL, ogDescriptionSelector, s.metaWait)
	if err != nil {
		return model.RawPost{}, err
	}
	return postFromHTML(strings.NewReader(html))
}
