package core

import "context"

// ReceivedToolResult is the outcome of one tool call as seen by the graph.
// Failures (unknown tool, invalid arguments, execution error) are carried as
// text in Content with a nil Result so the model can react to them.
type ReceivedToolResult struct {
	ID      string
	Tool    string
	Content string
	Result  any
}

// IsFailure reports whether the call failed: no structured result but a
// non-empty textual content.
func (r ReceivedToolResult) IsFailure() bool { return r.Result == nil && r.Content != "" }

// ToMessage renders the result as a ToolResultMessage for the prompt.
func (r ReceivedToolResult) ToMessage() ToolResultMessage {
	return ToolResultMessage{ID: r.ID, Tool: r.Tool, Text: r.Content, Meta: stamp()}
}

// Environment is the bridge between graph nodes and tool execution.
type Environment interface {
	// ExecuteTools runs calls and returns exactly one result per call in the
	// same order as calls.
	ExecuteTools(ctx context.Context, calls []ToolCallMessage) ([]ReceivedToolResult, error)
	// ReportProblem surfaces a non recoverable problem; the returned error
	// fails the run when propagated.
	ReportProblem(ctx context.Context, err error) error
	// SendTermination requests graceful termination carrying result; the
	// returned error is a *TerminationError.
	SendTermination(ctx context.Context, result string) error
}

// RunInfo identifies a single agent run.
type RunInfo struct {
	AgentID      string
	RunID        string
	StrategyName string
}
