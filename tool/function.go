package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds an explicit Descriptor (no reflection based discovery)
//   - Decodes the JSON arguments into a map before invoking the function
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> arguments are not a JSON object
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type FunctionTool struct {
	desc Descriptor
	fn   func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit descriptor and function.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  tool.Descriptor{
//	    Name:        "calculate_sum",
//	    Description: "Calculate the sum of two numbers",
//	    Required: []tool.Parameter{
//	      {Name: "a", Type: tool.TypeFloat},
//	      {Name: "b", Type: tool.TypeFloat},
//	    },
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(desc Descriptor, fn func(ctx context.Context, args map[string]any) (any, error)) *FunctionTool {
	return &FunctionTool{desc: desc, fn: fn}
}

// Descriptor returns the tool descriptor.
func (t *FunctionTool) Descriptor() Descriptor { return t.desc }

// Execute decodes args and invokes the wrapped function.
func (t *FunctionTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	argMap := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return nil, &ToolError{
				Tool:    t.desc.Name,
				Message: fmt.Sprintf("failed to unmarshal args: %v", err),
				Code:    CodeValidation,
				Err:     err,
			}
		}
	}

	result, err := t.fn(ctx, argMap)
	if err != nil {
		return nil, wrapExecution(t.desc.Name, err)
	}
	return result, nil
}

// TypedTool decodes its JSON arguments into A before calling the function.
type TypedTool[A any] struct {
	desc Descriptor
	fn   func(ctx context.Context, args A) (any, error)
}

// NewTypedTool adapts a function taking a typed argument struct.
//
//	type weatherArgs struct {
//	  City string `json:"city"`
//	}
//	weather := tool.NewTypedTool(desc, func(ctx context.Context, a weatherArgs) (any, error) {
//	  return lookup(ctx, a.City)
//	})
func NewTypedTool[A any](desc Descriptor, fn func(ctx context.Context, args A) (any, error)) *TypedTool[A] {
	return &TypedTool[A]{desc: desc, fn: fn}
}

// Descriptor returns the tool descriptor.
func (t *TypedTool[A]) Descriptor() Descriptor { return t.desc }

// Execute decodes args into A and invokes the wrapped function.
func (t *TypedTool[A]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a A
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, &ToolError{
				Tool:    t.desc.Name,
				Message: fmt.Sprintf("failed to unmarshal args: %v", err),
				Code:    CodeValidation,
				Err:     err,
			}
		}
	}

	result, err := t.fn(ctx, a)
	if err != nil {
		return nil, wrapExecution(t.desc.Name, err)
	}
	return result, nil
}

func wrapExecution(name string, err error) error {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return &ToolError{Tool: name, Message: err.Error(), Code: CodeExecution, Err: err}
}
