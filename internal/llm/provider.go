// Package llm talks to the external completion services used to read
// event details out of free text, images and web pages.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Image is an inline image attachment.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is a single-turn completion request.
type Request struct {
	System string
	Prompt string
	Image  *Image

	// Temperature and MaxTokens override the provider defaults when non-zero.
	Temperature float64
	MaxTokens   int
}

// Completer returns the raw text of one completion. Implementations do not
// interpret the text; callers own parsing and validation.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds the Completer named by cfg.Provider.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
