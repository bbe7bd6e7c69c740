package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postcal/internal/llm"
	"postcal/internal/model"
)

const aiSystemPrompt = `You are an Instagram content extractor. Given an Instagram URL, fetch and extract the post information.

Return ONLY a valid JSON object with these fields:
- caption: The post caption/description text (string)
- username: The Instagram username who posted it (string)
- thumbnailUrl: The main image/video thumbnail URL (string, optional)

Return ONLY the JSON object, no additional text or markdown formatting.`

// AIStrategy delegates the fetch to a completion service that can browse,
// such as Perplexity's sonar models.
type AIStrategy struct {
	completer llm.Completer
}

func NewAIStrategy(c llm.Completer) *AIStrategy {
	return &AIStrategy{completer: c}
}

func (s *AIStrategy) Name() string { return "ai" }

type aiPost struct {
	Caption      string `json:"caption"`
	Username     string `json:"username"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

func (s *AIStrategy) Extract(ctx context.Context, postURL string) (model.RawPost, error) {
	text, err := s.completer.Complete(ctx, llm.Request{
		System: aiSystemPrompt,
		Prompt: fmt.Sprintf("Extract the Instagram post information from this URL: %s\n\n"+
			"Fetch the page content and extract the caption, username, and thumbnail URL if available.", postURL),
		Temperature: 0.2,
	})
	if err != nil {
		return model.RawPost{}, err
	}

	var out aiPost
	if err := llm.DecodeJSON(text, &out); err != nil {
		return model.RawPost{}, err
	}
	caption := strings.TrimSpace(out.Caption)
	if caption == "" {
		return model.RawPost{}, errors.New("completion had no caption")
	}
	return model.RawPost{
		Caption:      caption,
		Author:       strings.TrimSpace(out.Username),
		ThumbnailURL: strings.TrimSpace(out.ThumbnailURL),
	}, nil
}
