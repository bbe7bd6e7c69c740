package extract

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"postcal/internal/fetch"
	"postcal/internal/model"
)

// EmbedStrategy asks the platform's oEmbed endpoint. It is fast but
// rate-limited and often refuses without a token.
type EmbedStrategy struct {
	fetcher  *fetch.Fetcher
	endpoint string
	token    string
}

func NewEmbedStrategy(fetcher *fetch.Fetcher, endpoint, token string) *EmbedStrategy {
	return &EmbedStrategy{fetcher: fetcher, endpoint: endpoint, token: token}
}

func (s *EmbedStrategy) Name() string { return "embed" }

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (s *EmbedStrategy) Extract(ctx context.Context, postURL string) (model.RawPost, error) {
	q := url.Values{}
	q.Set("url", postURL)
	q.Set("access_token", s.token)
	q.Set("fields", "thumbnail_url,author_name,title")

	sep := "?"
	if strings.Contains(s.endpoint, "?") {
		sep = "&"
	}

	var resp oembedResponse
	if err := s.fetcher.GetJSON(ctx, s.endpoint+sep+q.Encode(), &resp); err != nil {
		return model.RawPost{}, err
	}

	post := model.RawPost{
		Caption:      strings.TrimSpace(resp.Title),
		Author:       strings.TrimSpace(resp.AuthorName),
		ThumbnailURL: strings.TrimSpace(resp.ThumbnailURL),
	}
	if post.Caption == "" && post.ThumbnailURL == "" {
		return model.RawPost{}, errors.New("embed response had no title or thumbnail")
	}
	return post, nil
}
