package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy names, in default priority order.
const (
	StrategyEmbed   = "embed"
	StrategyAI      = "ai"
	StrategyHTML    = "html"
	StrategyBrowser = "browser"
)

const (
	BrowserAuto     = "auto"
	BrowserChromedp = "chromedp"
	BrowserRod      = "rod"
)

// Environment variables that override the file. Secrets are usually set
// this way so they never land in the YAML.
const (
	EnvTextAPIKey   = "POSTCAL_TEXT_API_KEY"
	EnvVisionAPIKey = "POSTCAL_VISION_API_KEY"
	EnvEmbedToken   = "POSTCAL_EMBED_TOKEN"
	EnvBrowserPath  = "POSTCAL_BROWSER_PATH"
	EnvListen       = "POSTCAL_LISTEN"

	envPerplexityKey = "PERPLEXITY_API_KEY"
	envGeminiKey     = "GEMINI_API_KEY"
)

const (
	DefaultEmbedEndpoint = "https://graph.facebook.com/v18.0/instagram_oembed"
	DefaultTextBaseURL   = "https://api.perplexity.ai"
	DefaultTextModel     = "sonar"
	DefaultVisionBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultVisionModel   = "gemini-2.0-flash"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ProviderConfig configures one completion service.
type ProviderConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string        `yaml:"provider" json:"provider"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Model       string        `yaml:"model" json:"model"`
	APIKey      string        `yaml:"api_key,omitempty" json:"-"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// AIConfig splits text and vision models; they are often different vendors.
type AIConfig struct {
	Text   ProviderConfig `yaml:"text" json:"text"`
	Vision ProviderConfig `yaml:"vision" json:"vision"`
}

// StrategyConfig is one entry of the extraction chain.
type StrategyConfig struct {
	Name    string        `yaml:"name" json:"name"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Enabled is a pointer so an omitted key means enabled.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (s StrategyConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type ExtractionConfig struct {
	// Strategies are tried in list order.
	Strategies    []StrategyConfig `yaml:"strategies" json:"strategies"`
	EmbedEndpoint string           `yaml:"embed_endpoint" json:"embed_endpoint"`
	EmbedToken    string           `yaml:"embed_token,omitempty" json:"-"`
	UserAgent     string           `yaml:"user_agent" json:"user_agent"`
	MaxPageBytes  int64            `yaml:"max_page_bytes" json:"max_page_bytes"`
}

type BrowserConfig struct {
	// Backend is "auto", "chromedp" or "rod".
	Backend       string        `yaml:"backend" json:"backend"`
	ExecPath      string        `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent"`
	MetaWait      time.Duration `yaml:"meta_wait" json:"meta_wait"`
	NoSandbox     bool          `yaml:"no_sandbox" json:"no_sandbox"`
}

type CalendarConfig struct {
	ProdID    string `yaml:"prodid" json:"prodid"`
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for timestamps without an offset and
	// for the reference "now" given to the interpreter.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	AI         AIConfig         `yaml:"ai" json:"ai"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Calendar   CalendarConfig   `yaml:"calendar" json:"calendar"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultStrategies returns the chain in priority order, cheapest first.
func DefaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{Name: StrategyEmbed, Timeout: 8 * time.Second},
		{Name: StrategyAI, Timeout: 30 * time.Second},
		{Name: StrategyHTML, Timeout: 12 * time.Second},
		{Name: StrategyBrowser, Timeout: 45 * time.Second},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "UTC",
		LogLevel:  "info",
		LogFormat: "text",
		AI: AIConfig{
			Text: ProviderConfig{
				Provider:    "openai",
				BaseURL:     DefaultTextBaseURL,
				Model:       DefaultTextModel,
				Temperature: 0.2,
				Timeout:     60 * time.Second,
			},
			Vision: ProviderConfig{
				Provider:    "openai",
				BaseURL:     DefaultVisionBaseURL,
				Model:       DefaultVisionModel,
				Temperature: 0.2,
				Timeout:     60 * time.Second,
			},
		},
		Extraction: ExtractionConfig{
			Strategies:    DefaultStrategies(),
			EmbedEndpoint: DefaultEmbedEndpoint,
			MaxPageBytes:  5 << 20,
		},
		Browser: BrowserConfig{
			Backend:       BrowserAuto,
			MaxConcurrent: 2,
			MetaWait:      5 * time.Second,
		},
		Calendar: CalendarConfig{
			ProdID:    "-//postcal//EN",
			UIDDomain: "postcal",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		c.LogFormat = def.LogFormat
	}

	normalizeProvider(&c.AI.Text, def.AI.Text)
	normalizeProvider(&c.AI.Vision, def.AI.Vision)

	if len(c.Extraction.Strategies) == 0 {
		c.Extraction.Strategies = DefaultStrategies()
	}
	defTimeouts := map[string]time.Duration{}
	for _, s := range DefaultStrategies() {
		defTimeouts[s.Name] = s.Timeout
	}
	for i := range c.Extraction.Strategies {
		s := &c.Extraction.Strategies[i]
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		if s.Timeout <= 0 {
			s.Timeout = defTimeouts[s.Name]
		}
		if s.Timeout <= 0 {
			s.Timeout = 15 * time.Second
		}
	}
	if c.Extraction.EmbedEndpoint == "" {
		c.Extraction.EmbedEndpoint = def.Extraction.EmbedEndpoint
	}
	if c.Extraction.MaxPageBytes <= 0 {
		c.Extraction.MaxPageBytes = def.Extraction.MaxPageBytes
	}

	switch strings.ToLower(c.Browser.Backend) {
	case BrowserAuto, BrowserChromedp, BrowserRod:
		c.Browser.Backend = strings.ToLower(c.Browser.Backend)
	default:
		// Unknown value; auto picks something that works on this host.
		c.Browser.Backend = BrowserAuto
	}
	if c.Browser.MaxConcurrent <= 0 {
		c.Browser.MaxConcurrent = def.Browser.MaxConcurrent
	}
	if c.Browser.MetaWait <= 0 {
		c.Browser.MetaWait = def.Browser.MetaWait
	}

	if c.Calendar.ProdID == "" {
		c.Calendar.ProdID = def.Calendar.ProdID
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = def.Calendar.UIDDomain
	}
}

func normalizeProvider(p *ProviderConfig, def ProviderConfig) {
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	if p.Provider == "" {
		p.Provider = def.Provider
	}
	// Only the OpenAI-compatible default endpoints make sense to inherit.
	if p.BaseURL == "" && p.Provider == def.Provider {
		p.BaseURL = def.BaseURL
	}
	if p.Model == "" && p.Provider == def.Provider {
		p.Model = def.Model
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
}

// Validate reports settings that would make every request fail.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	for _, s := range c.Extraction.Strategies {
		switch s.Name {
		case StrategyEmbed, StrategyAI, StrategyHTML, StrategyBrowser:
		default:
			errs = append(errs, fmt.Errorf("unknown extraction strategy %q", s.Name))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ApplyEnv overrides file values with environment variables. lookup is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	first := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := first(EnvTextAPIKey, envPerplexityKey); ok {
		c.AI.Text.APIKey = v
	}
	if v, ok := first(EnvVisionAPIKey, envGeminiKey); ok {
		c.AI.Vision.APIKey = v
	}
	if v, ok := first(EnvEmbedToken); ok {
		c.Extraction.EmbedToken = v
	}
	if v, ok := first(EnvBrowserPath); ok {
		c.Browser.ExecPath = v
	}
	if v, ok := first(EnvListen); ok {
		c.Listen = v
	}
}

// BrowserBackend resolves "auto" to a concrete backend. Serverless hosts get
// rod, whose launcher can download a browser; everything else gets chromedp
// against the locally installed Chrome.
func (c *Config) BrowserBackend(lookup func(string) (string, bool)) string {
	if c.Browser.Backend != BrowserAuto && c.Browser.Backend != "" {
		return c.Browser.Backend
	}
	for _, k := range []string{"AWS_LAMBDA_FUNCTION_NAME", "VERCEL"} {
		if v, ok := lookup(k); ok && v != "" {
			return BrowserRod
		}
	}
	return BrowserChromedp
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied after the file is read and are never
// written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			err := Save(path, cfg)
			cfg.ApplyEnv(os.LookupEnv)
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv(os.LookupEnv)

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".postcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
