package main

import (
	"os"

	"postcal/internal/browser"
	"postcal/internal/calendar"
	"postcal/internal/config"
	"postcal/internal/extract"
	"postcal/internal/fetch"
	"postcal/internal/interpret"
	"postcal/internal/llm"
	appLog "postcal/internal/log"
	"postcal/internal/metrics"
	"postcal/internal/pipeline"
)

func providerConfig(p config.ProviderConfig) llm.Config {
	return llm.Config{
		Provider:    p.Provider,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		APIKey:      p.APIKey,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Timeout:     p.Timeout,
	}
}

// newOrchestrator builds the whole conversion pipeline from conf.
func newOrchestrator(conf *config.Config, m *metrics.Metrics) (*pipeline.Orchestrator, error) {
	textLLM, err := llm.New(providerConfig(conf.AI.Text))
	if err != nil {
		return nil, err
	}
	visionLLM, err := llm.New(providerConfig(conf.AI.Vision))
	if err != nil {
		return nil, err
	}
	if conf.AI.Text.APIKey == "" {
		appLog.Warn("no API key for the text model; set " + config.EnvTextAPIKey)
	}

	userAgent := conf.Extraction.UserAgent
	if userAgent == "" {
		userAgent = fetch.DefaultUserAgent
	}
	fetcher := fetch.NewFetcher(fetch.Options{
		UserAgent:  userAgent,
		MaxBytes:   conf.Extraction.MaxPageBytes,
		MaxRetries: 1,
	})

	backendName := conf.BrowserBackend(os.LookupEnv)
	backend, err := browser.NewBackend(browser.Options{
		Backend:   backendName,
		ExecPath:  conf.Browser.ExecPath,
		UserAgent: userAgent,
		NoSandbox: conf.Browser.NoSandbox,
	})
	if err != nil {
		return nil, err
	}
	pool := browser.NewPool(backend, conf.Browser.MaxConcurrent, m)

	chain, err := extract.NewChainFromConfig(conf.Extraction.Strategies, extract.Deps{
		Fetcher:       fetcher,
		Completer:     textLLM,
		Renderer:      pool,
		EmbedEndpoint: conf.Extraction.EmbedEndpoint,
		EmbedToken:    conf.Extraction.EmbedToken,
		MetaWait:      conf.Browser.MetaWait,
	}, m)
	if err != nil {
		return nil, err
	}

	interp := interpret.New(interpret.Options{
		Text:     textLLM,
		Vision:   visionLLM,
		Location: conf.Location(),
	})
	gen := calendar.NewGenerator(calendar.Options{
		ProdID:    conf.Calendar.ProdID,
		UIDDomain: conf.Calendar.UIDDomain,
	})

	appLog.Info("pipeline ready",
		"timezone", conf.Timezone,
		"strategies", chain.Names(),
		"browser", backendName,
		"text_model", conf.AI.Text.Model,
		"text_url", appLog.RedactURL(conf.AI.Text.BaseURL),
		"vision_model", conf.AI.Vision.Model,
	)
	return pipeline.New(chain, interp, gen, m), nil
}
