package feature

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/llm"
	"github.com/hupe1980/agentgraph/logging"
)

// Handler reacts to a single event type.
type Handler[E Event] func(ctx context.Context, e E) error

type handler struct {
	key Key
	fn  func(ctx context.Context, ev Event) error
}

type envWrapper struct {
	key  Key
	wrap func(core.Environment) core.Environment
}

type tap struct {
	id int
	fn func(ctx context.Context, ev Event)
}

// PipelineOptions configure a Pipeline.
type PipelineOptions struct {
	Logger logging.Logger
}

// Pipeline is the per agent registry of installed features and their event
// handlers. It is safe for concurrent use by multiple runs of the same agent.
type Pipeline struct {
	mu        sync.RWMutex
	installed []Key
	handlers  map[string][]handler
	instances map[Key]any
	wrappers  []envWrapper
	taps      []tap
	nextTap   int

	logger logging.Logger
}

// NewPipeline creates an empty pipeline.
func NewPipeline(optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{
		handlers:  make(map[string][]handler),
		instances: make(map[Key]any),
		logger:    opts.Logger,
	}
}

// Install installs f unless a feature with the same key is already
// installed, in which case it is a no-op. A failing installation leaves no
// handlers, wrappers or instance behind.
func (p *Pipeline) Install(f Installer) error {
	key := f.Key()

	p.mu.Lock()
	if slices.Contains(p.installed, key) {
		p.mu.Unlock()
		return nil
	}
	p.installed = append(p.installed, key)
	p.mu.Unlock()

	if err := f.Install(p); err != nil {
		p.uninstall(key)
		return fmt.Errorf("install feature %s: %w", key, err)
	}

	p.logger.Debug("feature.installed", "feature", string(key))
	return nil
}

func (p *Pipeline) uninstall(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.installed = slices.DeleteFunc(p.installed, func(k Key) bool { return k == key })
	for name, hs := range p.handlers {
		p.handlers[name] = slices.DeleteFunc(hs, func(h handler) bool { return h.key == key })
	}
	p.wrappers = slices.DeleteFunc(p.wrappers, func(w envWrapper) bool { return w.key == key })
	delete(p.instances, key)
}

// IsInstalled reports whether a feature with key was installed.
func (p *Pipeline) IsInstalled(key Key) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Contains(p.installed, key)
}

// Installed returns the installed feature keys in installation order.
func (p *Pipeline) Installed() []Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.installed)
}

// Provide publishes the feature instance stored under key.
func (p *Pipeline) Provide(key Key, instance any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances[key] = instance
}

// Instance returns the instance published under key.
func (p *Pipeline) Instance(key Key) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.instances[key]
	return v, ok
}

// WrapEnvironment registers a decorator for the tool execution environment.
// Decorators apply in registration order, the first one wrapping the base.
func (p *Pipeline) WrapEnvironment(key Key, wrap func(core.Environment) core.Environment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrappers = append(p.wrappers, envWrapper{key: key, wrap: wrap})
}

// Environment applies every registered decorator to base.
func (p *Pipeline) Environment(base core.Environment) core.Environment {
	p.mu.RLock()
	wrappers := slices.Clone(p.wrappers)
	p.mu.RUnlock()

	env := base
	for _, w := range wrappers {
		env = w.wrap(env)
	}
	return env
}

// Tap registers fn to observe every event after the handlers ran. It
// returns a function removing the tap.
func (p *Pipeline) Tap(fn func(ctx context.Context, ev Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextTap++
	id := p.nextTap
	p.taps = append(p.taps, tap{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.taps = slices.DeleteFunc(p.taps, func(t tap) bool { return t.id == id })
	}
}

// Intercept registers fn for the concrete event type E. Handlers accumulate;
// registering twice for the same key and event keeps both.
func Intercept[E Event](p *Pipeline, key Key, fn Handler[E]) {
	var zero E
	if any(zero) == nil {
		panic("feature: Intercept requires a concrete event type")
	}
	p.register(zero.EventName(), key, func(ctx context.Context, ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return nil
		}
		return fn(ctx, e)
	})
}

func (p *Pipeline) register(name string, key Key, fn func(ctx context.Context, ev Event) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = append(p.handlers[name], handler{key: key, fn: fn})
}

// InterceptBeforeAgentStarted registers a handler for AgentStartedEvent.
func (p *Pipeline) InterceptBeforeAgentStarted(key Key, fn Handler[AgentStartedEvent]) {
	Intercept(p, key, fn)
}

// InterceptAgentFinished registers a handler for AgentFinishedEvent.
func (p *Pipeline) InterceptAgentFinished(key Key, fn Handler[AgentFinishedEvent]) {
	Intercept(p, key, fn)
}

// InterceptAgentRunError registers a handler for AgentRunErrorEvent.
func (p *Pipeline) InterceptAgentRunError(key Key, fn Handler[AgentRunErrorEvent]) {
	Intercept(p, key, fn)
}

// InterceptStrategyStarted registers a handler for StrategyStartedEvent.
func (p *Pipeline) InterceptStrategyStarted(key Key, fn Handler[StrategyStartedEvent]) {
	Intercept(p, key, fn)
}

// InterceptStrategyFinished registers a handler for StrategyFinishedEvent.
func (p *Pipeline) InterceptStrategyFinished(key Key, fn Handler[StrategyFinishedEvent]) {
	Intercept(p, key, fn)
}

// InterceptBeforeNode registers a handler for BeforeNodeEvent.
func (p *Pipeline) InterceptBeforeNode(key Key, fn Handler[BeforeNodeEvent]) {
	Intercept(p, key, fn)
}

// InterceptAfterNode registers a handler for AfterNodeEvent.
func (p *Pipeline) InterceptAfterNode(key Key, fn Handler[AfterNodeEvent]) {
	Intercept(p, key, fn)
}

// InterceptBeforeLLMCall registers a handler for BeforeLLMCallEvent.
func (p *Pipeline) InterceptBeforeLLMCall(key Key, fn Handler[BeforeLLMCallEvent]) {
	Intercept(p, key, fn)
}

// InterceptAfterLLMCall registers a handler for AfterLLMCallEvent.
func (p *Pipeline) InterceptAfterLLMCall(key Key, fn Handler[AfterLLMCallEvent]) {
	Intercept(p, key, fn)
}

// InterceptToolCall registers a handler for ToolCallEvent.
func (p *Pipeline) InterceptToolCall(key Key, fn Handler[ToolCallEvent]) {
	Intercept(p, key, fn)
}

// InterceptToolValidationError registers a handler for ToolValidationErrorEvent.
func (p *Pipeline) InterceptToolValidationError(key Key, fn Handler[ToolValidationErrorEvent]) {
	Intercept(p, key, fn)
}

// InterceptToolCallFailure registers a handler for ToolCallFailureEvent.
func (p *Pipeline) InterceptToolCallFailure(key Key, fn Handler[ToolCallFailureEvent]) {
	Intercept(p, key, fn)
}

// InterceptToolCallResult registers a handler for ToolCallResultEvent.
func (p *Pipeline) InterceptToolCallResult(key Key, fn Handler[ToolCallResultEvent]) {
	Intercept(p, key, fn)
}

// Emit dispatches ev to every handler registered for its type in
// registration order, then to the taps. Failing or panicking handlers are
// logged and skipped. The first handler error wrapping core.ErrAbortRun is
// returned after all handlers ran.
func (p *Pipeline) Emit(ctx context.Context, ev Event) error {
	p.mu.RLock()
	hs := slices.Clone(p.handlers[ev.EventName()])
	taps := slices.Clone(p.taps)
	p.mu.RUnlock()

	var abort error
	for _, h := range hs {
		err := p.call(ctx, h, ev)
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrAbortRun) {
			p.logger.Error("feature.handler.aborted",
				"feature", string(h.key),
				"event", ev.EventName(),
				"run_id", ev.RunInfo().RunID,
				"error", err.Error(),
			)
			if abort == nil {
				abort = err
			}
			continue
		}
		p.logger.Warn("feature.handler.failed",
			"feature", string(h.key),
			"event", ev.EventName(),
			"run_id", ev.RunInfo().RunID,
			"error", err.Error(),
		)
	}

	for _, t := range taps {
		p.tap(ctx, t, ev)
	}

	return abort
}

func (p *Pipeline) call(ctx context.Context, h handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.fn(ctx, ev)
}

func (p *Pipeline) tap(ctx context.Context, t tap, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("feature.tap.failed", "event", ev.EventName(), "recover", r)
		}
	}()
	t.fn(ctx, ev)
}

// BeforeLLMCall implements llm.CallObserver.
func (p *Pipeline) BeforeLLMCall(ctx context.Context, call llm.CallInfo) {
	_ = p.Emit(ctx, BeforeLLMCallEvent{
		Run:    call.Run,
		Prompt: call.Prompt,
		Model:  call.Model,
		Tools:  call.Tools,
	})
}

// AfterLLMCall implements llm.CallObserver.
func (p *Pipeline) AfterLLMCall(ctx context.Context, call llm.CallInfo, responses []core.Message, err error) {
	_ = p.Emit(ctx, AfterLLMCallEvent{
		Run:       call.Run,
		Prompt:    call.Prompt,
		Model:     call.Model,
		Responses: responses,
		Err:       err,
	})
}

var _ llm.CallObserver = (*Pipeline)(nil)
