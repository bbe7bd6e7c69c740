package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider sends prompts through llmkit. Images are uploaded with
// the Files API and referenced by ID.
type AnthropicProvider struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int

	upload func(filePath, apiKey string) (*types.File, error)
	prompt func(system, user, schema, apiKey string, settings types.RequestSettings, files ...types.File) (*types.AnthropicResponse, error)
}

func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		upload:      anthropic.UploadFile,
		prompt:      anthropic.PromptWithSettings,
	}
}

type anthropicResult struct {
	text string
	err  error
}

// Complete runs the llmkit calls on their own goroutine because llmkit takes
// no context. Cancellation abandons whichever call is in flight, an image
// upload or the prompt, without aborting it. The prompt is not sent if ctx
// is done by the time the upload finishes.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", errors.New("anthropic: api key is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan anthropicResult, 1)
	go func() {
		text, err := p.complete(ctx, req)
		done <- anthropicResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

func (p *AnthropicProvider) complete(ctx context.Context, req Request) (string, error) {
	var files []types.File
	if req.Image != nil {
		id, err := p.uploadImage(req.Image)
		if err != nil {
			return "", err
		}
		files = append(files, types.File{ID: id})
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	settings := types.RequestSettings{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	if req.Temperature != 0 {
		settings.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		settings.MaxTokens = req.MaxTokens
	}

	response, err := p.prompt(req.System, req.Prompt, "", p.apiKey, settings, files...)
	if err != nil {
		return "", fmt.Errorf("anthropic: prompt failed: %w", err)
	}
	if len(response.Content) == 0 || strings.TrimSpace(response.Content[0].Text) == "" {
		return "", errors.New("anthropic: empty completion")
	}
	return response.Content[0].Text, nil
}

// uploadImage writes the image to a temp file because llmkit uploads by path.
func (p *AnthropicProvider) uploadImage(img *Image) (string, error) {
	tempFile, err := os.CreateTemp("", "postcal-image-*"+imageExt(img.MIMEType))
	if err != nil {
		return "", fmt.Errorf("anthropic: create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(img.Data); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("anthropic: write temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("anthropic: close temp file: %w", err)
	}

	file, err := p.upload(tempFile.Name(), p.apiKey)
	if err != nil {
		return "", fmt.Errorf("anthropic: upload image: %w", err)
	}
	return file.ID, nil
}

func imageExt(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
