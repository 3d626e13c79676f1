// Package tracing records OpenTelemetry spans for agent runs.
//
// Span hierarchy of a run:
//
//	agent.run
//	└── strategy <name>
//	    └── node <name>
//	        ├── llm.call
//	        └── tool.call <tool>
//
// Failures are recorded on the innermost open span and on the run span
// with status codes.Error.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
)

// Key identifies the tracing feature.
const Key feature.Key = "tracing"

// DefaultTracerName is the instrumentation scope of the spans.
const DefaultTracerName = "github.com/hupe1980/agentgraph"

// Attribute keys.
const (
	AttrAgentID       = "agentgraph.agent.id"
	AttrRunID         = "agentgraph.run.id"
	AttrStrategy      = "agentgraph.strategy.name"
	AttrNode          = "agentgraph.node.name"
	AttrIteration     = "agentgraph.node.iteration"
	AttrModelProvider = "agentgraph.model.provider"
	AttrModelID       = "agentgraph.model.id"
	AttrPromptLength  = "agentgraph.prompt.messages"
	AttrToolsInScope  = "agentgraph.tools.count"
	AttrResponses     = "agentgraph.llm.responses"
	AttrTool          = "agentgraph.tool.name"
	AttrToolCallID    = "agentgraph.tool.call_id"
	AttrTerminated    = "agentgraph.run.terminated"
	AttrInput         = "agentgraph.run.input"
	AttrOutput        = "agentgraph.run.output"
)

// Config configures the tracing feature.
type Config struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	TracerName     string
	// CaptureContent records run input and output as span attributes.
	CaptureContent bool
	// MaxContentLength truncates captured content.
	MaxContentLength int
}

type tracingFeature struct{}

// New returns the tracing feature.
func New() feature.Feature[Config] { return tracingFeature{} }

// Use returns an installer of the tracing feature.
func Use(configure ...func(c *Config)) feature.Installer {
	return feature.Use(New(), configure...)
}

func (tracingFeature) Key() feature.Key { return Key }

func (tracingFeature) DefaultConfig() Config {
	return Config{
		TracerName:       DefaultTracerName,
		MaxContentLength: 256,
	}
}

func (tracingFeature) Install(cfg Config, p *feature.Pipeline) error {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	t := &Tracer{
		tracer: cfg.TracerProvider.Tracer(cfg.TracerName),
		cfg:    cfg,
		runs:   make(map[string]*runSpans),
	}

	p.Provide(Key, t)
	p.InterceptBeforeAgentStarted(Key, t.onAgentStarted)
	p.InterceptStrategyStarted(Key, t.onStrategyStarted)
	p.InterceptBeforeNode(Key, t.onBeforeNode)
	p.InterceptAfterNode(Key, t.onAfterNode)
	p.InterceptBeforeLLMCall(Key, t.onBeforeLLMCall)
	p.InterceptAfterLLMCall(Key, t.onAfterLLMCall)
	p.InterceptToolCall(Key, t.onToolCall)
	p.InterceptToolValidationError(Key, t.onToolValidationError)
	p.InterceptToolCallFailure(Key, t.onToolCallFailure)
	p.InterceptToolCallResult(Key, t.onToolCallResult)
	p.InterceptStrategyFinished(Key, t.onStrategyFinished)
	p.InterceptAgentFinished(Key, t.onAgentFinished)
	p.InterceptAgentRunError(Key, t.onAgentRunError)

	return nil
}

type scope struct {
	ctx  context.Context
	span trace.Span
}

func (s *scope) end(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

type runSpans struct {
	run      *scope
	strategy *scope
	node     *scope
	llm      *scope
	tools    map[string]*scope
}

// parent returns the innermost open scope able to hold children.
func (r *runSpans) parent() *scope {
	switch {
	case r.node != nil:
		return r.node
	case r.strategy != nil:
		return r.strategy
	default:
		return r.run
	}
}

// Tracer keeps the open spans of every active run.
type Tracer struct {
	tracer trace.Tracer
	cfg    Config

	mu   sync.Mutex
	runs map[string]*runSpans
}

// Active returns the number of runs with open spans.
func (t *Tracer) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

func (t *Tracer) start(parent context.Context, name string, attrs ...attribute.KeyValue) *scope {
	ctx, span := t.tracer.Start(parent, name, trace.WithAttributes(attrs...))
	return &scope{ctx: ctx, span: span}
}

func (t *Tracer) with(info core.RunInfo, fn func(r *runSpans)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.runs[info.RunID]; ok {
		fn(r)
	}
}

func (t *Tracer) content(s string) string {
	if t.cfg.MaxContentLength > 0 && len(s) > t.cfg.MaxContentLength {
		return s[:t.cfg.MaxContentLength] + "..."
	}
	return s
}

func (t *Tracer) onAgentStarted(ctx context.Context, e feature.AgentStartedEvent) error {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, e.Run.AgentID),
		attribute.String(AttrRunID, e.Run.RunID),
		attribute.String(AttrStrategy, e.Run.StrategyName),
	}
	if t.cfg.CaptureContent {
		attrs = append(attrs, attribute.String(AttrInput, t.content(e.Input)))
	}

	run := t.start(ctx, "agent.run", attrs...)

	t.mu.Lock()
	t.runs[e.Run.RunID] = &runSpans{run: run, tools: make(map[string]*scope)}
	t.mu.Unlock()

	return nil
}

func (t *Tracer) onStrategyStarted(_ context.Context, e feature.StrategyStartedEvent) error {
	t.with(e.Run, func(r *runSpans) {
		r.strategy = t.start(r.run.ctx, "strategy "+e.Run.StrategyName,
			attribute.String(AttrStrategy, e.Run.StrategyName))
	})
	return nil
}

func (t *Tracer) onBeforeNode(_ context.Context, e feature.BeforeNodeEvent) error {
	t.with(e.Run, func(r *runSpans) {
		parent := r.strategy
		if parent == nil {
			parent = r.run
		}
		r.node = t.start(parent.ctx, "node "+e.Node,
			attribute.String(AttrNode, e.Node),
			attribute.Int(AttrIteration, e.Iteration))
	})
	return nil
}

func (t *Tracer) onAfterNode(_ context.Context, e feature.AfterNodeEvent) error {
	t.with(e.Run, func(r *runSpans) {
		r.node.end(nil)
		r.node = nil
	})
	return nil
}

func (t *Tracer) onBeforeLLMCall(_ context.Context, e feature.BeforeLLMCallEvent) error {
	t.with(e.Run, func(r *runSpans) {
		r.llm = t.start(r.parent().ctx, "llm.call",
			attribute.String(AttrModelProvider, string(e.Model.Provider)),
			attribute.String(AttrModelID, e.Model.ID),
			attribute.Int(AttrPromptLength, e.Prompt.Len()),
			attribute.Int(AttrToolsInScope, len(e.Tools)))
	})
	return nil
}

func (t *Tracer) onAfterLLMCall(_ context.Context, e feature.AfterLLMCallEvent) error {
	t.with(e.Run, func(r *runSpans) {
		if r.llm == nil {
			return
		}
		r.llm.span.SetAttributes(attribute.Int(AttrResponses, len(e.Responses)))
		r.llm.end(e.Err)
		r.llm = nil
	})
	return nil
}

func toolKey(c core.ToolCallMessage) string { return c.ID + "/" + c.Tool }

func (t *Tracer) onToolCall(_ context.Context, e feature.ToolCallEvent) error {
	t.with(e.Run, func(r *runSpans) {
		r.tools[toolKey(e.Call)] = t.start(r.parent().ctx, "tool.call "+e.Call.Tool,
			attribute.String(AttrTool, e.Call.Tool),
			attribute.String(AttrToolCallID, e.Call.ID))
	})
	return nil
}

func (t *Tracer) endTool(info core.RunInfo, call core.ToolCallMessage, err error) {
	t.with(info, func(r *runSpans) {
		key := toolKey(call)
		r.tools[key].end(err)
		delete(r.tools, key)
	})
}

func (t *Tracer) onToolValidationError(_ context.Context, e feature.ToolValidationErrorEvent) error {
	t.endTool(e.Run, e.Call, e.Err)
	return nil
}

func (t *Tracer) onToolCallFailure(_ context.Context, e feature.ToolCallFailureEvent) error {
	t.endTool(e.Run, e.Call, e.Err)
	return nil
}

func (t *Tracer) onToolCallResult(_ context.Context, e feature.ToolCallResultEvent) error {
	t.endTool(e.Run, e.Call, nil)
	return nil
}

func (t *Tracer) onStrategyFinished(_ context.Context, e feature.StrategyFinishedEvent) error {
	t.with(e.Run, func(r *runSpans) {
		r.strategy.end(nil)
		r.strategy = nil
	})
	return nil
}

func (t *Tracer) onAgentFinished(_ context.Context, e feature.AgentFinishedEvent) error {
	t.finish(e.Run, nil, func(run trace.Span) {
		run.SetAttributes(attribute.Bool(AttrTerminated, e.Terminated))
		if t.cfg.CaptureContent {
			run.SetAttributes(attribute.String(AttrOutput, t.content(e.Result)))
		}
		run.SetStatus(codes.Ok, "")
	})
	return nil
}

func (t *Tracer) onAgentRunError(_ context.Context, e feature.AgentRunErrorEvent) error {
	t.finish(e.Run, e.Err, nil)
	return nil
}

// finish closes every open span of the run innermost first. err is recorded
// on the innermost open span and on the run span.
func (t *Tracer) finish(info core.RunInfo, err error, annotate func(run trace.Span)) {
	t.mu.Lock()
	r, ok := t.runs[info.RunID]
	delete(t.runs, info.RunID)
	t.mu.Unlock()

	if !ok {
		return
	}

	recorded := false
	endInner := func(s *scope) {
		if s == nil {
			return
		}
		if !recorded {
			s.end(err)
			recorded = true
			return
		}
		s.end(nil)
	}

	for _, s := range r.tools {
		s.end(nil)
	}
	endInner(r.llm)
	endInner(r.node)
	endInner(r.strategy)

	if annotate != nil {
		annotate(r.run.span)
	}
	r.run.end(err)
}
