package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the AI routing core.
type Metrics struct {
	CallsTotal          *prometheus.CounterVec
	CallDurationMs      *prometheus.HistogramVec
	TokensTotal         *prometheus.CounterVec
	CostUSDTotal        *prometheus.CounterVec
	CostAvoidedUSDTotal *prometheus.CounterVec
	CacheEventsTotal    *prometheus.CounterVec
	FallbacksTotal      *prometheus.CounterVec
	ModelDefaultsTotal  prometheus.Counter
	BreakerState        *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerochurn_ai_calls_total",
			Help: "Total AI call attempts by task, model, and outcome.",
		}, []string{"task", "model", "outcome"}),

		CallDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zerochurn_ai_call_duration_ms",
			Help:    "AI call duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"task", "model"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerochurn_ai_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"model", "direction"}),

		CostUSDTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerochurn_ai_cost_usd_total",
			Help: "Estimated total cost in USD.",
		}, []string{"task", "model"}),

		CostAvoidedUSDTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerochurn_ai_cost_avoided_usd_total",
			Help: "Estimated USD cost avoided by cache hits.",
		}, []string{"task"}),

		CacheEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerochurn_ai_cache_events_total",
			Help: "Response cache events for cacheable tasks.",
		}, []string{"task", "event"}),

		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerochurn_ai_fallbacks_total",
			Help: "Fallback transitions between models.",
		}, []string{"from_model", "to_model"}),

		ModelDefaultsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerochurn_ai_model_defaults_total",
			Help: "Catalog lookups that fell back to the default model.",
		}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zerochurn_ai_breaker_state",
			Help: "Per-model circuit breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"model"}),
	}
}

// RecordCall records metrics for a completed AI call attempt.
func (m *Metrics) RecordCall(labels CallLabels) {
	m.CallsTotal.WithLabelValues(labels.Task, labels.Model, labels.Outcome).Inc()

	m.CallDurationMs.WithLabelValues(labels.Task, labels.Model).Observe(labels.DurationMs)

	if labels.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "input").Add(float64(labels.InputTokens))
	}

	if labels.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "output").Add(float64(labels.OutputTokens))
	}

	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Task, labels.Model).Add(labels.CostUSD)
	}

	if labels.CostAvoidedUSD > 0 {
		m.CostAvoidedUSDTotal.WithLabelValues(labels.Task).Add(labels.CostAvoidedUSD)
	}
}

// RecordCacheEvent records a cache hit or miss for a cacheable task.
func (m *Metrics) RecordCacheEvent(task, event string) {
	m.CacheEventsTotal.WithLabelValues(task, event).Inc()
}

// RecordFallback records a fallback transition between models.
func (m *Metrics) RecordFallback(fromModel, toModel string) {
	m.FallbacksTotal.WithLabelValues(fromModel, toModel).Inc()
}

// RecordModelDefaulted records a catalog lookup that hit the default model.
func (m *Metrics) RecordModelDefaulted() {
	m.ModelDefaultsTotal.Inc()
}

// SetBreakerState records the current circuit breaker state for a model.
func (m *Metrics) SetBreakerState(model string, state float64) {
	m.BreakerState.WithLabelValues(model).Set(state)
}

// CallLabels holds the label values for recording an AI call.
type CallLabels struct {
	Task           string
	Model          string
	Outcome        string
	DurationMs     float64
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	CostAvoidedUSD float64
}
