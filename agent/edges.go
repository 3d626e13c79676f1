package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
)

// Always accepts every output.
func Always[O any]() Condition[O] {
	return func(context.Context, *Context, O) (bool, error) { return true, nil }
}

// OnCondition accepts outputs satisfying pred.
func OnCondition[O any](pred func(out O) bool) Condition[O] {
	return func(_ context.Context, _ *Context, out O) (bool, error) { return pred(out), nil }
}

// Not negates cond.
func Not[O any](cond Condition[O]) Condition[O] {
	return func(ctx context.Context, ac *Context, out O) (bool, error) {
		ok, err := cond(ctx, ac, out)
		return !ok, err
	}
}

// And accepts outputs accepted by every cond, evaluated left to right.
func And[O any](conds ...Condition[O]) Condition[O] {
	return func(ctx context.Context, ac *Context, out O) (bool, error) {
		for _, c := range conds {
			ok, err := c(ctx, ac, out)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// OnAssistantMessage accepts plain assistant answers.
func OnAssistantMessage() Condition[core.Message] {
	return OnCondition(func(m core.Message) bool {
		_, ok := m.(core.AssistantMessage)
		return ok
	})
}

// OnToolCall accepts tool call messages.
func OnToolCall() Condition[core.Message] {
	return OnCondition(func(m core.Message) bool {
		_, ok := m.(core.ToolCallMessage)
		return ok
	})
}

// OnToolCallNamed accepts calls of the named tool.
func OnToolCallNamed(name string) Condition[core.Message] {
	return OnCondition(func(m core.Message) bool {
		tc, ok := m.(core.ToolCallMessage)
		return ok && tc.Tool == name
	})
}

// OnToolCallExcept accepts calls of any tool other than name.
func OnToolCallExcept(name string) Condition[core.Message] {
	return OnCondition(func(m core.Message) bool {
		tc, ok := m.(core.ToolCallMessage)
		return ok && tc.Tool != name
	})
}

// OnToolNotCalled accepts every message except calls of the named tool.
func OnToolNotCalled(name string) Condition[core.Message] {
	return Not(OnToolCallNamed(name))
}

// OnSuccessfulToolResult accepts tool results that are not failures.
func OnSuccessfulToolResult() Condition[core.ReceivedToolResult] {
	return OnCondition(func(r core.ReceivedToolResult) bool { return !r.IsFailure() })
}

// OnFailedToolResult accepts failed tool results.
func OnFailedToolResult() Condition[core.ReceivedToolResult] {
	return OnCondition(func(r core.ReceivedToolResult) bool { return r.IsFailure() })
}

// OnMultipleToolCalls accepts responses containing at least one tool call.
func OnMultipleToolCalls() Condition[[]core.Message] {
	return OnCondition(func(msgs []core.Message) bool { return len(core.ToolCalls(msgs)) > 0 })
}

// OnMultipleAssistantMessages accepts responses without tool calls.
func OnMultipleAssistantMessages() Condition[[]core.Message] {
	return OnCondition(func(msgs []core.Message) bool {
		return len(msgs) > 0 && len(core.ToolCalls(msgs)) == 0
	})
}

// Identity passes the output through unchanged.
func Identity[O any]() Transform[O, O] {
	return func(_ context.Context, _ *Context, out O) (O, error) { return out, nil }
}

// Literal ignores the output and yields v.
func Literal[O, T any](v T) Transform[O, T] {
	return func(context.Context, *Context, O) (T, error) { return v, nil }
}

// Map transforms the output with fn.
func Map[O, T any](fn func(out O) T) Transform[O, T] {
	return func(_ context.Context, _ *Context, out O) (T, error) { return fn(out), nil }
}

// AssistantText yields the text content of a message.
func AssistantText() Transform[core.Message, string] {
	return Map(func(m core.Message) string { return m.Content() })
}

// AssistantTexts joins the contents of the assistant messages in a response.
func AssistantTexts() Transform[[]core.Message, string] {
	return Map(func(msgs []core.Message) string {
		var parts []string
		for _, m := range msgs {
			if a, ok := m.(core.AssistantMessage); ok {
				parts = append(parts, a.Text)
			}
		}
		return strings.Join(parts, "\n")
	})
}

// AsToolCall narrows a message to a tool call. It fails for other messages,
// so it is meant to follow OnToolCall.
func AsToolCall() Transform[core.Message, core.ToolCallMessage] {
	return func(_ context.Context, _ *Context, m core.Message) (core.ToolCallMessage, error) {
		tc, ok := m.(core.ToolCallMessage)
		if !ok {
			return core.ToolCallMessage{}, fmt.Errorf("expected tool call, got %T", m)
		}
		return tc, nil
	}
}

// ToolCalls extracts the tool calls of a response in order.
func ToolCalls() Transform[[]core.Message, []core.ToolCallMessage] {
	return Map(core.ToolCalls)
}

// ResultContent yields the textual content of a tool result.
func ResultContent() Transform[core.ReceivedToolResult, string] {
	return Map(func(r core.ReceivedToolResult) string { return r.Content })
}
