package feature

import (
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// Event names as reported by Event.EventName.
const (
	EventBeforeAgentStarted  = "before-agent-started"
	EventAgentFinished       = "agent-finished"
	EventAgentRunError       = "agent-run-error"
	EventStrategyStarted     = "strategy-started"
	EventStrategyFinished    = "strategy-finished"
	EventBeforeNode          = "before-node"
	EventAfterNode           = "after-node"
	EventBeforeLLMCall       = "before-llm-call"
	EventAfterLLMCall        = "after-llm-call"
	EventToolCall            = "tool-call"
	EventToolValidationError = "tool-validation-error"
	EventToolCallFailure     = "tool-call-failure"
	EventToolCallResult      = "tool-call-result"
)

// Event is a lifecycle notification dispatched through a Pipeline.
type Event interface {
	EventName() string
	RunInfo() core.RunInfo
}

// AgentStartedEvent is emitted before the strategy of a run starts.
type AgentStartedEvent struct {
	Run   core.RunInfo
	Input string
}

func (AgentStartedEvent) EventName() string       { return EventBeforeAgentStarted }
func (e AgentStartedEvent) RunInfo() core.RunInfo { return e.Run }

// AgentFinishedEvent is emitted once when a run finished or terminated.
type AgentFinishedEvent struct {
	Run    core.RunInfo
	Result string
	// Terminated is set for graceful early stops.
	Terminated bool
}

func (AgentFinishedEvent) EventName() string       { return EventAgentFinished }
func (e AgentFinishedEvent) RunInfo() core.RunInfo { return e.Run }

// AgentRunErrorEvent is emitted once when a run failed.
type AgentRunErrorEvent struct {
	Run core.RunInfo
	Err error
}

func (AgentRunErrorEvent) EventName() string       { return EventAgentRunError }
func (e AgentRunErrorEvent) RunInfo() core.RunInfo { return e.Run }

// StrategyStartedEvent is emitted before the start node executes.
type StrategyStartedEvent struct {
	Run core.RunInfo
}

func (StrategyStartedEvent) EventName() string       { return EventStrategyStarted }
func (e StrategyStartedEvent) RunInfo() core.RunInfo { return e.Run }

// StrategyFinishedEvent is emitted when the finish node was reached.
type StrategyFinishedEvent struct {
	Run    core.RunInfo
	Result string
}

func (StrategyFinishedEvent) EventName() string       { return EventStrategyFinished }
func (e StrategyFinishedEvent) RunInfo() core.RunInfo { return e.Run }

// BeforeNodeEvent is emitted before a node's work function runs.
type BeforeNodeEvent struct {
	Run       core.RunInfo
	Node      string
	Input     any
	Iteration int
}

func (BeforeNodeEvent) EventName() string       { return EventBeforeNode }
func (e BeforeNodeEvent) RunInfo() core.RunInfo { return e.Run }

// AfterNodeEvent is emitted after a node's work function returned without error.
type AfterNodeEvent struct {
	Run    core.RunInfo
	Node   string
	Input  any
	Output any
}

func (AfterNodeEvent) EventName() string       { return EventAfterNode }
func (e AfterNodeEvent) RunInfo() core.RunInfo { return e.Run }

// BeforeLLMCallEvent is emitted before a prompt is sent to the executor.
type BeforeLLMCallEvent struct {
	Run    core.RunInfo
	Prompt core.Prompt
	Model  model.LLModel
	Tools  []tool.Descriptor
}

func (BeforeLLMCallEvent) EventName() string       { return EventBeforeLLMCall }
func (e BeforeLLMCallEvent) RunInfo() core.RunInfo { return e.Run }

// AfterLLMCallEvent is emitted after the executor answered or failed.
type AfterLLMCallEvent struct {
	Run       core.RunInfo
	Prompt    core.Prompt
	Model     model.LLModel
	Responses []core.Message
	Err       error
}

func (AfterLLMCallEvent) EventName() string       { return EventAfterLLMCall }
func (e AfterLLMCallEvent) RunInfo() core.RunInfo { return e.Run }

// ToolCallEvent is emitted before a tool call is validated and executed.
type ToolCallEvent struct {
	Run  core.RunInfo
	Call core.ToolCallMessage
}

func (ToolCallEvent) EventName() string       { return EventToolCall }
func (e ToolCallEvent) RunInfo() core.RunInfo { return e.Run }

// ToolValidationErrorEvent is emitted when the call arguments do not match
// the tool schema or the tool is unknown.
type ToolValidationErrorEvent struct {
	Run  core.RunInfo
	Call core.ToolCallMessage
	Err  error
}

func (ToolValidationErrorEvent) EventName() string       { return EventToolValidationError }
func (e ToolValidationErrorEvent) RunInfo() core.RunInfo { return e.Run }

// ToolCallFailureEvent is emitted when a tool returned an error or panicked.
type ToolCallFailureEvent struct {
	Run  core.RunInfo
	Call core.ToolCallMessage
	Err  error
}

func (ToolCallFailureEvent) EventName() string       { return EventToolCallFailure }
func (e ToolCallFailureEvent) RunInfo() core.RunInfo { return e.Run }

// ToolCallResultEvent is emitted when a tool produced a result.
type ToolCallResultEvent struct {
	Run    core.RunInfo
	Call   core.ToolCallMessage
	Result core.ReceivedToolResult
}

func (ToolCallResultEvent) EventName() string       { return EventToolCallResult }
func (e ToolCallResultEvent) RunInfo() core.RunInfo { return e.Run }
