package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with prose", "Here you go:\n```json\n{\"a\":1}\n```\nThanks", `{"a":1}`},
		{"stray backticks", "`{\"a\":1}`", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out map[string]any
	require.NoError(t, DecodeJSON("Sure! {\"title\":\"x\"} Let me know.", &out))
	assert.Equal(t, "x", out["title"])

	out = nil
	err := DecodeJSON("The event is tomorrow at noon.", &out)
	assert.ErrorIs(t, err, ErrNoJSON)

	err = DecodeJSON("   ", &out)
	assert.ErrorIs(t, err, ErrNoJSON)

	err = DecodeJSON("{broken", &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestOpenAIProviderText(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{BaseURL: srv.URL + "/", Model: "sonar", APIKey: "k", Temperature: 0.3})
	text, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, `{"title":"x"}`, text)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "sonar", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestOpenAIProviderImage(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{BaseURL: srv.URL, Model: "gemini"})
	_, err := p.Complete(context.Background(), Request{
		Prompt: "read this",
		Image:  &Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"},
	})
	require.NoError(t, err)

	messages := raw["messages"].([]any)
	user := messages[len(messages)-1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(img["url"].(string), "data:image/png;base64,"))
}

func TestOpenAIProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider(Config{BaseURL: srv.URL, Model: "m"}).Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = NewOpenAIProvider(Config{BaseURL: srv.URL}).Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorContains(t, err, "model is required")
}

func TestNewProvider(t *testing.T) {
	c, err := New(Config{Provider: "openai"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, c)

	c, err = New(Config{Provider: "Anthropic"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, c)

	_, err = New(Config{Provider: "mystery"})
	assert.Error(t, err)
}

func TestAnthropicProviderSkipsPromptAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uploaded, prompted bool
	p := NewAnthropicProvider(Config{APIKey: "k"})
	p.upload = func(filePath, apiKey string) (*types.File, error) {
		uploaded = true
		cancel()
		return &types.File{ID: "file_1"}, nil
	}
	p.prompt = func(system, user, schema, apiKey string, settings types.RequestSettings, files ...types.File) (*types.AnthropicResponse, error) {
		prompted = true
		return &types.AnthropicResponse{Content: []types.Content{{Type: "text", Text: "{}"}}}, nil
	}

	_, err := p.complete(ctx, Request{Prompt: "read this", Image: &Image{Data: []byte("img"), MIMEType: "image/png"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, uploaded)
	assert.False(t, prompted)
}

func TestAnthropicProviderCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewAnthropicProvider(Config{APIKey: "k"})
	p.upload = func(string, string) (*types.File, error) {
		t.Fatal("upload called after cancellation")
		return nil, nil
	}

	_, err := p.Complete(ctx, Request{Prompt: "x", Image: &Image{Data: []byte("img")}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnthropicProviderComplete(t *testing.T) {
	var gotFiles []types.File
	var gotSettings types.RequestSettings
	p := NewAnthropicProvider(Config{APIKey: "k", Temperature: 0.2})
	p.upload = func(filePath, apiKey string) (*types.File, error) {
		assert.True(t, strings.HasSuffix(filePath, ".png"), filePath)
		assert.Equal(t, "k", apiKey)
		return &types.File{ID: "file_1"}, nil
	}
	p.prompt = func(system, user, schema, apiKey string, settings types.RequestSettings, files ...types.File) (*types.AnthropicResponse, error) {
		gotFiles = files
		gotSettings = settings
		return &types.AnthropicResponse{Content: []types.Content{{Type: "text", Text: `{"title":"x"}`}}}, nil
	}

	text, err := p.Complete(context.Background(), Request{
		System:      "sys",
		Prompt:      "read this",
		Image:       &Image{Data: []byte("img"), MIMEType: "image/png"},
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, text)
	assert.Equal(t, []types.File{{ID: "file_1"}}, gotFiles)
	assert.InDelta(t, 0.3, gotSettings.Temperature, 1e-9)
	assert.Equal(t, defaultAnthropicModel, gotSettings.Model)
}
