package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stepwise"

// Metrics collects session activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	stepLoads      *prometheus.CounterVec
	stepCompletes  *prometheus.CounterVec
	checkpoints    *prometheus.CounterVec
	syncs          *prometheus.CounterVec
	suggestions    *prometheus.CounterVec
	suggestLatency prometheus.Histogram
	persistFailed  *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	runtime bool
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() MetricsOption {
	return func(c *metricsConfig) {
		c.runtime = true
	}
}

// NewMetrics creates and registers the session collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	var cfg metricsConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_loads_total",
			Help:      "Total number of step loads",
		}, []string{"step_id"}),
		stepCompletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_completions_total",
			Help:      "Total number of steps whose checkpoints all passed",
		}, []string{"step_id"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_passes_total",
			Help:      "Total number of checkpoints that flipped to passed",
		}, []string{"kind"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_syncs_total",
			Help:      "Total number of sandbox send attempts",
		}, []string{"kind", "delivered"}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Total number of finished completion requests",
		}, []string{"outcome"}),
		suggestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggestion_duration_seconds",
			Help:      "Duration of completion requests",
			Buckets:   prometheus.DefBuckets,
		}),
		persistFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Total number of bridge mutations that gave up after retries",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.stepLoads,
		m.stepCompletes,
		m.checkpoints,
		m.syncs,
		m.suggestions,
		m.suggestLatency,
		m.persistFailed,
	)
	if cfg.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepLoad: func(_ context.Context, e *domain.StepEvent) {
			m.stepLoads.WithLabelValues(e.StepID).Inc()
		},
		OnStepComplete: func(_ context.Context, e *domain.StepEvent) {
			m.stepCompletes.WithLabelValues(e.StepID).Inc()
		},
		OnCheckpointPassed: func(_ context.Context, e *domain.CheckpointEvent) {
			m.checkpoints.WithLabelValues(string(e.Kind)).Inc()
		},
		OnSync: func(_ context.Context, e *domain.SyncEvent) {
			m.syncs.WithLabelValues(string(e.Kind), strconv.FormatBool(e.Delivered)).Inc()
		},
		OnSuggestion: func(_ context.Context, e *domain.SuggestionEvent) {
			m.suggestions.WithLabelValues(suggestionOutcome(e)).Inc()
			m.suggestLatency.Observe(e.Duration.Seconds())
		},
		OnPersistFailed: func(_ context.Context, e *domain.PersistEvent) {
			m.persistFailed.WithLabelValues(e.Op).Inc()
		},
	}
}

func suggestionOutcome(e *domain.SuggestionEvent) string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Offered:
		return "offered"
	default:
		return "empty"
	}
}
