// Package metrics exports Prometheus metrics for agent runs:
//
//	agentgraph_runs_total{status}
//	agentgraph_runs_active
//	agentgraph_node_executions_total{strategy,node}
//	agentgraph_node_duration_seconds{strategy,node}
//	agentgraph_llm_calls_total{provider,model}
//	agentgraph_llm_call_errors_total{provider,model}
//	agentgraph_tool_calls_total{tool,status}
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/agentgraph/feature"
)

// Key identifies the metrics feature.
const Key feature.Key = "metrics"

// Tool call status label values.
const (
	ToolStatusSuccess         = "success"
	ToolStatusFailure         = "failure"
	ToolStatusValidationError = "validation_error"
)

// Run status label values.
const (
	RunStatusFinished   = "finished"
	RunStatusTerminated = "terminated"
	RunStatusFailed     = "failed"
)

// Config configures the metrics feature.
type Config struct {
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Namespace  string
	// Buckets of the node duration histogram.
	Buckets []float64
	// Now is used to measure node durations.
	Now func() time.Time
}

type metricsFeature struct{}

// New returns the metrics feature.
func New() feature.Feature[Config] { return metricsFeature{} }

// Use returns an installer of the metrics feature.
func Use(configure ...func(c *Config)) feature.Installer {
	return feature.Use(New(), configure...)
}

func (metricsFeature) Key() feature.Key { return Key }

func (metricsFeature) DefaultConfig() Config {
	return Config{
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  "agentgraph",
		Buckets:    prometheus.DefBuckets,
		Now:        time.Now,
	}
}

func (metricsFeature) Install(cfg Config, p *feature.Pipeline) error {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m, err := newMetrics(cfg)
	if err != nil {
		return err
	}

	p.Provide(Key, m)
	p.InterceptBeforeAgentStarted(Key, m.onAgentStarted)
	p.InterceptAgentFinished(Key, m.onAgentFinished)
	p.InterceptAgentRunError(Key, m.onAgentRunError)
	p.InterceptBeforeNode(Key, m.onBeforeNode)
	p.InterceptAfterNode(Key, m.onAfterNode)
	p.InterceptAfterLLMCall(Key, m.onAfterLLMCall)
	p.InterceptToolValidationError(Key, m.onToolValidationError)
	p.InterceptToolCallFailure(Key, m.onToolCallFailure)
	p.InterceptToolCallResult(Key, m.onToolCallResult)

	return nil
}

// Metrics holds the collectors of the feature.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunsActive          prometheus.Gauge
	NodeExecutionsTotal *prometheus.CounterVec
	NodeDuration        *prometheus.HistogramVec
	LLMCallsTotal       *prometheus.CounterVec
	LLMCallErrorsTotal  *prometheus.CounterVec
	ToolCallsTotal      *prometheus.CounterVec

	now func() time.Time

	mu         sync.Mutex
	nodeStarts map[string]time.Time // run id -> start of the executing node
}

func newMetrics(cfg Config) (*Metrics, error) {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "runs_total",
				Help:      "Total number of agent runs by outcome",
			},
			[]string{"status"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "runs_active",
				Help:      "Number of agent runs currently executing",
			},
		),
		NodeExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "node_executions_total",
				Help:      "Total number of node executions",
			},
			[]string{"strategy", "node"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "node_duration_seconds",
				Help:      "Duration of successful node executions in seconds",
				Buckets:   cfg.Buckets,
			},
			[]string{"strategy", "node"},
		),
		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of language model requests",
			},
			[]string{"provider", "model"},
		),
		LLMCallErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "llm_call_errors_total",
				Help:      "Total number of failed language model requests",
			},
			[]string{"provider", "model"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by outcome",
			},
			[]string{"tool", "status"},
		),
		now:        cfg.Now,
		nodeStarts: make(map[string]time.Time),
	}

	var errs []error
	m.RunsTotal = register(cfg.Registerer, m.RunsTotal, &errs)
	m.RunsActive = register(cfg.Registerer, m.RunsActive, &errs)
	m.NodeExecutionsTotal = register(cfg.Registerer, m.NodeExecutionsTotal, &errs)
	m.NodeDuration = register(cfg.Registerer, m.NodeDuration, &errs)
	m.LLMCallsTotal = register(cfg.Registerer, m.LLMCallsTotal, &errs)
	m.LLMCallErrorsTotal = register(cfg.Registerer, m.LLMCallErrorsTotal, &errs)
	m.ToolCallsTotal = register(cfg.Registerer, m.ToolCallsTotal, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	return m, nil
}

// register registers c, or returns the collector already registered under
// the same descriptor so several agents can share a registry.
func register[C prometheus.Collector](r prometheus.Registerer, c C, errs *[]error) C {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errs = append(*errs, err)
	}
	return c
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
