package extract

import (
	"fmt"
	"time"

	"postcal/internal/config"
	"postcal/internal/fetch"
	"postcal/internal/llm"
	appLog "postcal/internal/log"
	"postcal/internal/metrics"
)

// Deps are the collaborators strategies are built from. Nil fields are
// fine as long as no configured strategy needs them.
type Deps struct {
	Fetcher   *fetch.Fetcher
	Completer llm.Completer
	Renderer  Renderer

	EmbedEndpoint string
	EmbedToken    string
	MetaWait      time.Duration
}

// NewFromConfig builds the strategy named by c.Name.
func NewFromConfig(c config.StrategyConfig, d Deps) (Strategy, error) {
	switch c.Name {
	case config.StrategyEmbed:
		if d.Fetcher == nil {
			return nil, fmt.Errorf("strategy %s needs a fetcher", c.Name)
		}
		return NewEmbedStrategy(d.Fetcher, d.EmbedEndpoint, d.EmbedToken), nil
	case config.StrategyAI:
		if d.Completer == nil {
			return nil, fmt.Errorf("strategy %s needs a completer", c.Name)
		}
		return NewAIStrategy(d.Completer), nil
	case config.StrategyHTML:
		if d.Fetcher == nil {
			return nil, fmt.Errorf("strategy %s needs a fetcher", c.Name)
		}
		return NewHTMLStrategy(d.Fetcher), nil
	case config.StrategyBrowser:
		if d.Renderer == nil {
			return nil, fmt.Errorf("strategy %s needs a renderer", c.Name)
		}
		return NewBrowserStrategy(d.Renderer, d.MetaWait), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", c.Name)
	}
}

// NewChainFromConfig builds a chain from the enabled entries, keeping
// their order.
func NewChainFromConfig(cfgs []config.StrategyConfig, d Deps, m *metrics.Metrics) (*Chain, error) {
	steps := make([]Step, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.IsEnabled() {
			appLog.Debug("extraction strategy disabled", "strategy", c.Name)
			continue
		}
		s, err := NewFromConfig(c, d)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Strategy: s, Timeout: c.Timeout})
	}
	return NewChain(m, steps...), nil
}
