// Package agentgraph is the run-level entry point of the module. An Agent
// bundles a strategy graph, a prompt executor, the tools the model may call
// and the installed features, and executes runs through engine.Engine.
//
// Most applications interact with this package by:
//  1. Building a strategy with the agent package, or picking a predefined one
//  2. Creating an Agent via New() or NewFromConfig()
//  3. Running it synchronously (Run, Execute) or streaming its events (RunStream)
//
// Each Run creates a fresh run context; nothing but feature state is shared
// between runs, and runs of the same Agent may execute concurrently.
package agentgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// Options configures an Agent.
type Options struct {
	// ID identifies the agent in run info, logs and telemetry. A random id is
	// generated when empty.
	ID string
	// Config holds the base prompt, model and iteration limit of every run.
	Config agent.Config
	// Tools the model may call. Nil means no tools.
	Tools *tool.Registry
	// Features are installed once, in order, when the agent is created.
	Features []feature.Installer
	// Environment configures the tool execution environment of each run.
	Environment agent.EnvironmentOptions
	// EngineConfig configures run concurrency and stream buffering.
	EngineConfig engine.Config
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Agent executes runs of a strategy. It is safe for concurrent use.
type Agent struct {
	id       string
	strategy *agent.Strategy
	executor model.PromptExecutor
	tools    *tool.Registry
	config   agent.Config
	pipeline *feature.Pipeline
	engine   *engine.Engine
	logger   logging.Logger
}

// New creates an Agent running strategy against executor.
func New(strategy *agent.Strategy, executor model.PromptExecutor, optFns ...func(o *Options)) (*Agent, error) {
	if strategy == nil {
		return nil, errors.New("strategy is required")
	}

	if executor == nil {
		return nil, errors.New("executor is required")
	}

	opts := Options{
		Config:       agent.DefaultConfig(),
		Environment:  agent.DefaultEnvironmentOptions,
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ID == "" {
		opts.ID = core.NewID()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Tools == nil {
		opts.Tools = tool.MustRegistry()
	}

	logger := logging.With(opts.Logger, "agent_id", opts.ID)

	pipeline := feature.NewPipeline(func(o *feature.PipelineOptions) { o.Logger = logger })
	for _, f := range opts.Features {
		if err := pipeline.Install(f); err != nil {
			return nil, fmt.Errorf("failed to install feature %s: %w", f.Key(), err)
		}
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Pipeline = pipeline
		o.Environment = opts.Environment
		o.Logger = opts.Logger
	})

	logger.Debug("agent.created", "strategy", strategy.Name(), "tools", opts.Tools.Len(), "features", len(opts.Features))

	return &Agent{
		id:       opts.ID,
		strategy: strategy,
		executor: executor,
		tools:    opts.Tools,
		config:   opts.Config,
		pipeline: pipeline,
		engine:   eng,
		logger:   logger,
	}, nil
}

// NewFromConfig creates an Agent from a configuration file. optFns are
// applied after the file, so they take precedence.
func NewFromConfig(file *config.File, strategy *agent.Strategy, executor model.PromptExecutor, optFns ...func(o *Options)) (*Agent, error) {
	if file == nil {
		return nil, errors.New("config file is required")
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fromFile := func(o *Options) {
		o.ID = file.Agent.ID
		o.Config = file.AgentConfig()
		o.Environment = file.EnvironmentConfig()
		o.EngineConfig = file.EngineConfig()
		o.Logger = logging.NewLogger(file.LoggerConfig())
	}

	return New(strategy, executor, append([]func(o *Options){fromFile}, optFns...)...)
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Strategy returns the strategy the agent runs.
func (a *Agent) Strategy() *agent.Strategy { return a.strategy }

// Pipeline returns the feature pipeline of the agent.
func (a *Agent) Pipeline() *feature.Pipeline { return a.pipeline }

// Feature returns the instance an installed feature published under key.
func (a *Agent) Feature(key feature.Key) (any, bool) { return a.pipeline.Instance(key) }

// Run executes a run and returns its output. Terminated runs return the
// termination payload.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	res, err := a.Execute(ctx, input)
	if err != nil {
		return "", err
	}

	return res.Output, nil
}

// Execute executes a run and returns its full result.
func (a *Agent) Execute(ctx context.Context, input string) (engine.Result, error) {
	return a.engine.Execute(ctx, a.request(input))
}

// RunStream starts a run in the background. Events beyond the configured
// buffer are dropped when nobody drains them.
func (a *Agent) RunStream(ctx context.Context, input string) *engine.Stream {
	return a.engine.Stream(ctx, a.request(input))
}

// Stop cancels the active run with the given id.
func (a *Agent) Stop(runID string) error { return a.engine.StopRun(runID) }

func (a *Agent) request(input string) engine.Request {
	return engine.Request{
		AgentID:  a.id,
		Strategy: a.strategy,
		Executor: a.executor,
		Tools:    a.tools,
		Config:   a.config,
		Input:    input,
	}
}
