package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/llm"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// ErrRunNotFound is returned by StopRun for unknown or finished runs.
var ErrRunNotFound = errors.New("run not found")

// Config defines tuning parameters of the Engine.
type Config struct {
	// MaxConcurrentRuns limits the number of runs executing simultaneously.
	// Runs beyond the limit wait for a free slot. Set to 0 for unlimited.
	MaxConcurrentRuns int

	// EventBufferSize sets the channel buffer size of streaming runs. Events
	// that do not fit are dropped. With 0 only events a reader is already
	// waiting for are delivered.
	EventBufferSize int
}

// DefaultConfig provides default configuration values.
var DefaultConfig = Config{
	MaxConcurrentRuns: 10,
	EventBufferSize:   100,
}

// Options configures a new Engine.
type Options struct {
	Config Config
	// Pipeline holds the installed features. A nil pipeline means no features.
	Pipeline *feature.Pipeline
	// Environment configures the GenericEnvironment built for each run.
	Environment agent.EnvironmentOptions
	Logger      logging.Logger
}

// Engine executes strategies. It is safe for concurrent use.
type Engine struct {
	pipeline *feature.Pipeline
	envOpts  agent.EnvironmentOptions
	logger   logging.Logger
	config   Config

	slots chan struct{}

	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// New creates a new Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:      DefaultConfig,
		Environment: agent.DefaultEnvironmentOptions,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Pipeline == nil {
		opts.Pipeline = feature.NewPipeline(func(o *feature.PipelineOptions) { o.Logger = opts.Logger })
	}

	e := &Engine{
		pipeline:   opts.Pipeline,
		envOpts:    opts.Environment,
		logger:     opts.Logger,
		config:     opts.Config,
		activeRuns: make(map[string]context.CancelFunc),
	}

	if opts.Config.MaxConcurrentRuns > 0 {
		e.slots = make(chan struct{}, opts.Config.MaxConcurrentRuns)
	}

	return e
}

// Pipeline returns the feature pipeline of the engine.
func (e *Engine) Pipeline() *feature.Pipeline { return e.pipeline }

// Request describes a single run.
type Request struct {
	// RunID identifies the run. A random id is generated when empty.
	RunID   string
	AgentID string

	Strategy *agent.Strategy
	Executor model.PromptExecutor
	// Tools is the registry the run may call. Nil means no tools.
	Tools  *tool.Registry
	Config agent.Config
	Input  string

	// Environment replaces the GenericEnvironment built from Tools. Feature
	// decorators are applied to it as well.
	Environment core.Environment
}

func (r Request) validate() error {
	var errs []error
	if r.Strategy == nil {
		errs = append(errs, errors.New("strategy is required"))
	}
	if r.Executor == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	return errors.Join(errs...)
}

// Execute runs the request to completion.
//
// The returned error is nil for Finished and Terminated runs. For Failed runs
// the Result carries the run id, the Failed status and the iterations used.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	if req.RunID == "" {
		req.RunID = core.NewID()
	}

	res := Result{RunID: req.RunID, Status: StatusPending}

	if err := req.validate(); err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("invalid request: %w", err)
	}

	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
		case <-ctx.Done():
			res.Status = StatusFailed
			return res, ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.runsMu.Lock()
	if _, exists := e.activeRuns[req.RunID]; exists {
		e.runsMu.Unlock()
		res.Status = StatusFailed
		return res, fmt.Errorf("run %s is already active", req.RunID)
	}
	e.activeRuns[req.RunID] = cancel
	e.runsMu.Unlock()

	defer func() {
		e.runsMu.Lock()
		delete(e.activeRuns, req.RunID)
		e.runsMu.Unlock()
	}()

	ac := e.newContext(req)
	logger := ac.Logger

	res.Status = StatusRunning
	logger.Debug("engine.run.started", "strategy", req.Strategy.Name())

	output, err := e.run(runCtx, ac, req.Strategy)
	res.Iterations = ac.State.Iterations.Count()

	switch {
	case err == nil:
		res.Status = StatusFinished
		res.Output = output
		e.emitFinal(ctx, feature.AgentFinishedEvent{Run: ac.Info, Result: output})
		logger.Debug("engine.run.finished", "iterations", res.Iterations)

		return res, nil
	default:
		if te, ok := core.AsTermination(err); ok {
			res.Status = StatusTerminated
			res.Output = te.Result
			e.emitFinal(ctx, feature.AgentFinishedEvent{Run: ac.Info, Result: te.Result, Terminated: true})
			logger.Debug("engine.run.terminated", "iterations", res.Iterations, "tool", te.Tool)

			return res, nil
		}

		res.Status = StatusFailed
		e.emitFinal(ctx, feature.AgentRunErrorEvent{Run: ac.Info, Err: err})
		logger.Warn("engine.run.failed", "iterations", res.Iterations, "error", err)

		return res, err
	}
}

func (e *Engine) newContext(req Request) *agent.Context {
	info := core.RunInfo{
		AgentID:      req.AgentID,
		RunID:        req.RunID,
		StrategyName: req.Strategy.Name(),
	}

	logger := logging.With(e.logger, "agent_id", req.AgentID, "run_id", req.RunID)

	tools := req.Tools
	if tools == nil {
		tools = tool.MustRegistry()
	}

	env := req.Environment
	if env == nil {
		env = agent.NewGenericEnvironment(tools, e.pipeline, info, func(o *agent.EnvironmentOptions) {
			*o = e.envOpts
			o.Logger = logger
		})
	}

	llmCtx := llm.NewContext(req.Executor, func(o *llm.Options) {
		o.Prompt = req.Config.Prompt
		o.Tools = req.Strategy.SelectTools(tools.Descriptors())
		o.Model = req.Config.Model
		o.Observer = e.pipeline
		o.RunInfo = info
		o.Logger = logger
	})

	return agent.NewContext(llmCtx, e.pipeline.Environment(env), func(o *agent.ContextOptions) {
		o.Info = info
		o.Input = req.Input
		o.Config = req.Config
		o.Pipeline = e.pipeline
		o.Logger = logger
	})
}

// run traverses the strategy graph until the finish node is reached or an
// error ends the run.
func (e *Engine) run(ctx context.Context, ac *agent.Context, s *agent.Strategy) (string, error) {
	if err := e.pipeline.Emit(ctx, feature.AgentStartedEvent{Run: ac.Info, Input: ac.Input}); err != nil {
		return "", err
	}

	if err := e.pipeline.Emit(ctx, feature.StrategyStartedEvent{Run: ac.Info}); err != nil {
		return "", err
	}

	var (
		current = s.Start()
		input   any = ac.Input
	)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if err := ac.State.Iterations.Increment(); err != nil {
			return "", fmt.Errorf("before node %s: %w", current.Name(), err)
		}

		if err := e.pipeline.Emit(ctx, feature.BeforeNodeEvent{
			Run:       ac.Info,
			Node:      current.Name(),
			Input:     input,
			Iteration: ac.State.Iterations.Count(),
		}); err != nil {
			return "", err
		}

		output, err := execute(ctx, ac, current, input)
		if err != nil {
			return "", &core.NodeError{Node: current.Name(), Err: err}
		}

		if err := e.pipeline.Emit(ctx, feature.AfterNodeEvent{
			Run:    ac.Info,
			Node:   current.Name(),
			Input:  input,
			Output: output,
		}); err != nil {
			return "", err
		}

		next, nextInput, err := route(ctx, ac, current, output)
		if err != nil {
			return "", &core.NodeError{Node: current.Name(), Err: err}
		}

		ac.Logger.Debug("engine.node.executed", "node", current.Name(), "next", next.Name())

		if next.IsFinish() {
			result, ok := nextInput.(string)
			if !ok {
				return "", fmt.Errorf("%w: finish node received %T", core.ErrNodeInputMismatch, nextInput)
			}

			if err := e.pipeline.Emit(ctx, feature.StrategyFinishedEvent{Run: ac.Info, Result: result}); err != nil {
				return "", err
			}

			return result, nil
		}

		current, input = next, nextInput
	}
}

// execute runs a single node, converting panics into errors.
func execute(ctx context.Context, ac *agent.Context, v agent.Vertex, in any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ac.Logger.Error("engine.node.panic", "node", v.Name(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	return v.Execute(ctx, ac, in)
}

// route resolves the outgoing edge of v. Conditions and transforms are user
// code and may panic like node bodies.
func route(ctx context.Context, ac *agent.Context, v agent.Vertex, out any) (next agent.Vertex, in any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ac.Logger.Error("engine.edge.panic", "node", v.Name(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	return v.Next(ctx, ac, out)
}

// emitFinal emits a terminal event. The outcome is already decided, so an
// abort request is only logged.
func (e *Engine) emitFinal(ctx context.Context, ev feature.Event) {
	if err := e.pipeline.Emit(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("engine.final_event.aborted", "event", ev.EventName(), "run_id", ev.RunInfo().RunID, "error", err)
	}
}

// StopRun cancels an active run. The run ends Failed with context.Canceled.
func (e *Engine) StopRun(runID string) error {
	e.runsMu.RLock()
	cancel, exists := e.activeRuns[runID]
	e.runsMu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the ids of the runs currently executing.
func (e *Engine) ActiveRuns() []string {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()

	ids := make([]string, 0, len(e.activeRuns))
	for id := range e.activeRuns {
		ids = append(ids, id)
	}

	return ids
}
