// Package tool implements the tool calling subsystem that lets agents invoke
// structured capabilities (APIs, computations, side effects) with schema
// validated arguments, consistent error handling and descriptors for LLM guidance.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered in a Registry and resolved by name when the model
// issues a tool call. Implementations should:
//   - Provide a descriptor with a unique, descriptive name
//   - Handle errors gracefully (return them, do not panic)
//   - Be safe for concurrent use; calls of one batch may run in parallel
type Tool interface {
	// Descriptor returns the name, description and declared parameters.
	Descriptor() Descriptor

	// Execute runs the tool with JSON encoded arguments. The arguments have
	// already been validated against the descriptor schema by the environment.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Terminator is implemented by tools whose successful call ends the run
// gracefully. The rendered tool result becomes the termination payload.
type Terminator interface {
	Terminates() bool
}

// IsTerminator reports whether t ends the run when called.
func IsTerminator(t Tool) bool {
	term, ok := t.(Terminator)
	return ok && term.Terminates()
}

// Error codes used in ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents errors that occur during tool resolution, validation or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Render converts a tool result into the text fed back to the model.
// Strings are used verbatim, Stringers via String, everything else as JSON.
func Render(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	case fmt.Stringer:
		return r.String()
	case error:
		return r.Error()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
