package agent

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/llm"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// DefaultMaxIterations bounds the number of node executions of a run when
// the configuration does not say otherwise.
const DefaultMaxIterations = 50

// Config holds the run configuration of an agent.
type Config struct {
	// MaxIterations is the maximum number of node executions per run.
	// Zero disables the limit.
	MaxIterations int
	// Prompt is the base prompt every run starts from, typically holding the
	// system message.
	Prompt core.Prompt
	// Model is the model selected at run start.
	Model model.LLModel
}

// DefaultConfig returns a configuration with an empty prompt and the default
// iteration limit.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		Prompt:        core.EmptyPrompt(),
	}
}

// RunState is the mutable bookkeeping of a single run.
type RunState struct {
	// Iterations counts node executions against the configured maximum.
	Iterations *core.IterationLimiter

	mu     sync.Mutex
	values map[string]any
}

// NewRunState creates the state of a run limited to maxIterations.
func NewRunState(maxIterations int) *RunState {
	return &RunState{
		Iterations: core.NewIterationLimiter(maxIterations),
		values:     make(map[string]any),
	}
}

// Get returns the custom value stored under key.
func (s *RunState) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a custom value.
func (s *RunState) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// Delete removes a custom value.
func (s *RunState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Values returns a copy of all custom values.
func (s *RunState) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// ContextOptions configure NewContext.
type ContextOptions struct {
	Info     core.RunInfo
	Input    string
	Config   Config
	Pipeline *feature.Pipeline
	Logger   logging.Logger
}

// Context is the per run bundle handed to every node: the environment, the
// run input and configuration, the LLM session layer, the run state, typed
// storage and the feature pipeline of the agent.
//
// Only one node of a run executes at a time; State and Storage need no
// coordination beyond that.
type Context struct {
	Info        core.RunInfo
	Input       string
	Config      Config
	Environment core.Environment
	LLM         *llm.Context
	State       *RunState
	Storage     *Storage
	Pipeline    *feature.Pipeline
	Logger      logging.Logger
}

// NewContext creates the context of a run.
func NewContext(llmCtx *llm.Context, env core.Environment, optFns ...func(o *ContextOptions)) *Context {
	opts := ContextOptions{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Pipeline == nil {
		opts.Pipeline = feature.NewPipeline(func(o *feature.PipelineOptions) { o.Logger = opts.Logger })
	}

	return &Context{
		Info:        opts.Info,
		Input:       opts.Input,
		Config:      opts.Config,
		Environment: env,
		LLM:         llmCtx,
		State:       NewRunState(opts.Config.MaxIterations),
		Storage:     NewStorage(),
		Pipeline:    opts.Pipeline,
		Logger:      opts.Logger,
	}
}

// Write opens a WriteSession on the run's LLM context.
func (c *Context) Write(ctx context.Context, fn func(s *llm.WriteSession) error) error {
	return c.LLM.Write(ctx, fn)
}

// Read opens a ReadSession on the run's LLM context.
func (c *Context) Read(ctx context.Context, fn func(s *llm.ReadSession) error) error {
	return c.LLM.Read(ctx, fn)
}

// Feature returns the instance published by the feature installed under key.
func (c *Context) Feature(key feature.Key) (any, bool) {
	return c.Pipeline.Instance(key)
}

// RequireFeature is like Feature but fails with core.ErrFeatureNotInstalled
// when the feature is missing.
func (c *Context) RequireFeature(key feature.Key) (any, error) {
	v, ok := c.Feature(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFeatureNotInstalled, key)
	}
	return v, nil
}

// FeatureOf returns the instance of the feature installed under key as T.
func FeatureOf[T any](c *Context, key feature.Key) (T, error) {
	var zero T
	v, err := c.RequireFeature(key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %T", core.ErrFeatureNotInstalled, key, v)
	}
	return t, nil
}

// Fork returns a shallow copy of c with fn applied. The receiver is left
// untouched; the copy shares state, storage and the LLM context unless fn
// replaces them.
func (c *Context) Fork(fn func(c *Context)) *Context {
	cp := *c
	if fn != nil {
		fn(&cp)
	}
	return &cp
}

// WithTools returns a copy of c whose LLM context is an independent fork
// limited to tools.
func (c *Context) WithTools(tools []tool.Descriptor) *Context {
	return c.Fork(func(cp *Context) {
		cp.LLM = c.LLM.Fork(func(o *llm.Options) { o.Tools = tools })
	})
}

// Storage holds typed values of a run, keyed by StorageKey.
type Storage struct {
	mu     sync.Mutex
	values map[string]any
}

// NewStorage creates empty storage.
func NewStorage() *Storage {
	return &Storage{values: make(map[string]any)}
}

// StorageKey identifies a storage slot holding a T.
type StorageKey[T any] struct {
	name string
}

// NewStorageKey creates a key named name.
func NewStorageKey[T any](name string) StorageKey[T] { return StorageKey[T]{name: name} }

// Name returns the key name.
func (k StorageKey[T]) Name() string { return k.name }

// Put stores v under key.
func Put[T any](s *Storage, key StorageKey[T], v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key.name] = v
}

// Lookup returns the value stored under key.
func Lookup[T any](s *Storage, key StorageKey[T]) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key.name].(T)
	return v, ok
}

// Remove deletes the value stored under name.
func (s *Storage) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Len returns the number of stored values.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
