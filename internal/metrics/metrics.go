// Package metrics holds the Prometheus collectors for postcal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "postcal"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups the collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// StrategyAttempts counts extraction attempts.
	// Labels: strategy, outcome
	StrategyAttempts *prometheus.CounterVec
	// StrategyDuration observes how long each extraction attempt took.
	// Labels: strategy
	StrategyDuration *prometheus.HistogramVec
	// PipelineRequests counts conversions end to end.
	// Labels: source (url|text|image), outcome (success|<error kind>)
	PipelineRequests *prometheus.CounterVec
	// BrowserSessions is the number of headless browser sessions open.
	BrowserSessions prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StrategyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Extraction strategy attempts by outcome.",
		}, []string{"strategy", "outcome"}),
		StrategyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Time spent in each extraction strategy.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"strategy"}),
		PipelineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Conversions by input source and outcome.",
		}, []string{"source", "outcome"}),
		BrowserSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions_in_flight",
			Help:      "Headless browser sessions currently open.",
		}),
	}
	m.registry.MustRegister(
		m.StrategyAttempts,
		m.StrategyDuration,
		m.PipelineRequests,
		m.BrowserSessions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStrategy(strategy string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeFailure
	if ok {
		outcome = OutcomeSuccess
	}
	m.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
	m.StrategyDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePipeline(source, outcome string) {
	if m == nil {
		return
	}
	m.PipelineRequests.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) BrowserOpened() {
	if m == nil {
		return
	}
	m.BrowserSessions.Inc()
}

func (m *Metrics) BrowserClosed() {
	if m == nil {
		return
	}
	m.BrowserSessions.Dec()
}
