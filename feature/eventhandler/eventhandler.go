// Package eventhandler installs user supplied callbacks for agent lifecycle
// events without writing a dedicated feature:
//
//	a, err := agentgraph.New(strategy, executor, func(o *agentgraph.Options) {
//		o.Features = append(o.Features, eventhandler.Use(func(c *eventhandler.Config) {
//			c.OnToolCall(func(ctx context.Context, e feature.ToolCallEvent) error {
//				log.Printf("calling %s", e.Call.Tool)
//				return nil
//			})
//		}))
//	})
//
// Callbacks run in registration order. A callback error is logged and
// ignored unless it wraps core.ErrAbortRun.
package eventhandler

import (
	"github.com/hupe1980/agentgraph/feature"
)

// Key identifies the event handler feature.
const Key feature.Key = "event-handler"

// Config collects the callbacks per event.
type Config struct {
	BeforeAgentStarted  []feature.Handler[feature.AgentStartedEvent]
	AgentFinished       []feature.Handler[feature.AgentFinishedEvent]
	AgentRunError       []feature.Handler[feature.AgentRunErrorEvent]
	StrategyStarted     []feature.Handler[feature.StrategyStartedEvent]
	StrategyFinished    []feature.Handler[feature.StrategyFinishedEvent]
	BeforeNode          []feature.Handler[feature.BeforeNodeEvent]
	AfterNode           []feature.Handler[feature.AfterNodeEvent]
	BeforeLLMCall       []feature.Handler[feature.BeforeLLMCallEvent]
	AfterLLMCall        []feature.Handler[feature.AfterLLMCallEvent]
	ToolCall            []feature.Handler[feature.ToolCallEvent]
	ToolValidationError []feature.Handler[feature.ToolValidationErrorEvent]
	ToolCallFailure     []feature.Handler[feature.ToolCallFailureEvent]
	ToolCallResult      []feature.Handler[feature.ToolCallResultEvent]
}

// OnBeforeAgentStarted and its siblings append a callback for one event.
func (c *Config) OnBeforeAgentStarted(fn feature.Handler[feature.AgentStartedEvent]) {
	c.BeforeAgentStarted = append(c.BeforeAgentStarted, fn)
}

func (c *Config) OnAgentFinished(fn feature.Handler[feature.AgentFinishedEvent]) {
	c.AgentFinished = append(c.AgentFinished, fn)
}

func (c *Config) OnAgentRunError(fn feature.Handler[feature.AgentRunErrorEvent]) {
	c.AgentRunError = append(c.AgentRunError, fn)
}

func (c *Config) OnStrategyStarted(fn feature.Handler[feature.StrategyStartedEvent]) {
	c.StrategyStarted = append(c.StrategyStarted, fn)
}

func (c *Config) OnStrategyFinished(fn feature.Handler[feature.StrategyFinishedEvent]) {
	c.StrategyFinished = append(c.StrategyFinished, fn)
}

func (c *Config) OnBeforeNode(fn feature.Handler[feature.BeforeNodeEvent]) {
	c.BeforeNode = append(c.BeforeNode, fn)
}

func (c *Config) OnAfterNode(fn feature.Handler[feature.AfterNodeEvent]) {
	c.AfterNode = append(c.AfterNode, fn)
}

func (c *Config) OnBeforeLLMCall(fn feature.Handler[feature.BeforeLLMCallEvent]) {
	c.BeforeLLMCall = append(c.BeforeLLMCall, fn)
}

func (c *Config) OnAfterLLMCall(fn feature.Handler[feature.AfterLLMCallEvent]) {
	c.AfterLLMCall = append(c.AfterLLMCall, fn)
}

func (c *Config) OnToolCall(fn feature.Handler[feature.ToolCallEvent]) {
	c.ToolCall = append(c.ToolCall, fn)
}

func (c *Config) OnToolValidationError(fn feature.Handler[feature.ToolValidationErrorEvent]) {
	c.ToolValidationError = append(c.ToolValidationError, fn)
}

func (c *Config) OnToolCallFailure(fn feature.Handler[feature.ToolCallFailureEvent]) {
	c.ToolCallFailure = append(c.ToolCallFailure, fn)
}

func (c *Config) OnToolCallResult(fn feature.Handler[feature.ToolCallResultEvent]) {
	c.ToolCallResult = append(c.ToolCallResult, fn)
}

type eventHandler struct{}

// New returns the event handler feature.
func New() feature.Feature[Config] { return eventHandler{} }

// Use returns an installer of the event handler feature.
func Use(configure ...func(c *Config)) feature.Installer {
	return feature.Use(New(), configure...)
}

func (eventHandler) Key() feature.Key { return Key }

func (eventHandler) DefaultConfig() Config { return Config{} }

func (eventHandler) Install(cfg Config, p *feature.Pipeline) error {
	register(cfg.BeforeAgentStarted, p.InterceptBeforeAgentStarted)
	register(cfg.AgentFinished, p.InterceptAgentFinished)
	register(cfg.AgentRunError, p.InterceptAgentRunError)
	register(cfg.StrategyStarted, p.InterceptStrategyStarted)
	register(cfg.StrategyFinished, p.InterceptStrategyFinished)
	register(cfg.BeforeNode, p.InterceptBeforeNode)
	register(cfg.AfterNode, p.InterceptAfterNode)
	register(cfg.BeforeLLMCall, p.InterceptBeforeLLMCall)
	register(cfg.AfterLLMCall, p.InterceptAfterLLMCall)
	register(cfg.ToolCall, p.InterceptToolCall)
	register(cfg.ToolValidationError, p.InterceptToolValidationError)
	register(cfg.ToolCallFailure, p.InterceptToolCallFailure)
	register(cfg.ToolCallResult, p.InterceptToolCallResult)
	return nil
}

func register[E feature.Event](fns []feature.Handler[E], intercept func(feature.Key, feature.Handler[E])) {
	for _, fn := range fns {
		if fn != nil {
			intercept(Key, fn)
		}
	}
}
