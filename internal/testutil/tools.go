package testutil

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentgraph/tool"
)

// EchoTool returns a tool answering its "text" argument after latency.
func EchoTool(name string, latency time.Duration) tool.Tool {
	return tool.NewFunctionTool(tool.Descriptor{
		Name:        name,
		Description: "Echoes the text argument",
		Required:    []tool.Parameter{{Name: "text", Type: tool.TypeString}},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return args["text"], nil
	})
}

// FailingTool returns a tool that always fails with message.
func FailingTool(name, message string) tool.Tool {
	return tool.NewFunctionTool(tool.Descriptor{Name: name, Description: "Always fails"},
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New(message)
		})
}

// PanickingTool returns a tool that panics with value.
func PanickingTool(name string, value any) tool.Tool {
	return tool.NewFunctionTool(tool.Descriptor{Name: name, Description: "Always panics"},
		func(context.Context, map[string]any) (any, error) {
			panic(value)
		})
}
