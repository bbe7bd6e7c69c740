package extract

import (
	"bytes"
	"context"

	"postcal/internal/fetch"
	"postcal/internal/model"
)

// HTMLStrategy fetches the page directly and reads its Open Graph tags.
type HTMLStrategy struct {
	fetcher *fetch.Fetcher
}

func NewHTMLStrategy(fetcher *fetch.Fetcher) *HTMLStrategy {
	return &HTMLStrategy{fetcher: fetcher}
}

func (s *HTMLStrategy) Name() string { return "html" }

func (s *HTMLStrategy) Extract(ctx context.Context, postURL string) (model.RawPost, error) {
	resp, err := s.fetcher.Get(ctx, postURL, nil)
	if err != nil {
		return model.RawPost{}, err
	}
	return postFromHTML(bytes.NewReader(resp.Body))
}
