package llm

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// CallInfo describes one LLM request as seen by observers.
type CallInfo struct {
	Run    core.RunInfo
	Prompt core.Prompt
	Model  model.LLModel
	Tools  []tool.Descriptor
}

// CallObserver is notified around every executor request issued through a
// WriteSession. The feature pipeline implements it.
type CallObserver interface {
	BeforeLLMCall(ctx context.Context, call CallInfo)
	AfterLLMCall(ctx context.Context, call CallInfo, responses []core.Message, err error)
}

type noopObserver struct{}

func (noopObserver) BeforeLLMCall(context.Context, CallInfo)                        {}
func (noopObserver) AfterLLMCall(context.Context, CallInfo, []core.Message, error) {}

// state is the committed value guarded by Context. Its fields are never
// mutated in place; writers replace the whole value.
type state struct {
	prompt core.Prompt
	tools  []tool.Descriptor
	model  model.LLModel
}

// Options configure a Context.
type Options struct {
	Prompt   core.Prompt
	Tools    []tool.Descriptor
	Model    model.LLModel
	Observer CallObserver
	RunInfo  core.RunInfo
	Logger   logging.Logger
}

// Context owns the prompt, the tools in scope and the selected model of one
// run. It is mutated only through Write; at most one WriteSession is open at
// any time and concurrent writers queue. Read observes the last committed
// value and never a partial write.
//
// Write is not reentrant: opening a second WriteSession on the same Context
// from inside a Write callback blocks until ctx is done.
type Context struct {
	mu     sync.RWMutex
	state  state
	writer chan struct{}

	executor model.PromptExecutor
	observer CallObserver
	info     core.RunInfo
	logger   logging.Logger
}

// NewContext creates a Context backed by executor.
func NewContext(executor model.PromptExecutor, optFns ...func(o *Options)) *Context {
	opts := Options{
		Prompt:   core.EmptyPrompt(),
		Observer: noopObserver{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Context{
		state: state{
			prompt: opts.Prompt,
			tools:  slices.Clone(opts.Tools),
			model:  opts.Model,
		},
		writer:   make(chan struct{}, 1),
		executor: executor,
		observer: opts.Observer,
		info:     opts.RunInfo,
		logger:   opts.Logger,
	}
}

// Read runs fn with a ReadSession over the committed state. The session is
// closed when fn returns.
func (c *Context) Read(ctx context.Context, fn func(s *ReadSession) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := &ReadSession{view: view{st: c.committed()}}
	defer s.close()
	return fn(s)
}

// Write runs fn with a WriteSession over a private draft. The draft is
// committed atomically when fn returns nil and ctx is still live; on error,
// panic or cancellation it is discarded. The writer slot is released on
// every exit path.
func (c *Context) Write(ctx context.Context, fn func(s *WriteSession) error) error {
	select {
	case c.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.writer }()

	s := &WriteSession{view: view{st: c.committed()}, owner: c}
	defer s.close()

	if err := fn(s); err != nil {
		c.logger.Debug("llm.write.discarded", "run_id", c.info.RunID, "error", err.Error())
		return err
	}
	if err := ctx.Err(); err != nil {
		c.logger.Debug("llm.write.discarded", "run_id", c.info.RunID, "error", err.Error())
		return err
	}

	c.mu.Lock()
	c.state = s.st
	c.mu.Unlock()
	return nil
}

// Prompt returns the committed prompt.
func (c *Context) Prompt() core.Prompt { return c.committed().prompt }

// Tools returns the committed tool descriptors.
func (c *Context) Tools() []tool.Descriptor { return slices.Clone(c.committed().tools) }

// Model returns the committed model.
func (c *Context) Model() model.LLModel { return c.committed().model }

// RunInfo returns the run the context belongs to.
func (c *Context) RunInfo() core.RunInfo { return c.info }

// Fork returns an independent Context starting from the committed state.
// Options override the copied values, e.g. to narrow the tools for a sub scope.
func (c *Context) Fork(optFns ...func(o *Options)) *Context {
	st := c.committed()
	return NewContext(c.executor, append([]func(o *Options){func(o *Options) {
		o.Prompt = st.prompt
		o.Tools = st.tools
		o.Model = st.model
		o.Observer = c.observer
		o.RunInfo = c.info
		o.Logger = c.logger
	}}, optFns...)...)
}

func (c *Context) committed() state {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
