package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/llm"
)

// SummarizeHistoryInstruction is the request appended by
// NodeLLMCompressHistory before asking the model for a summary.
const SummarizeHistoryInstruction = "Summarize the conversation so far: the task, every decision taken, " +
	"the results of all tool calls and what is left to do. The summary replaces the conversation history."

// NodeDoNothing passes its input through.
func NodeDoNothing[T any](b *StrategyBuilder, name string) *Node[T, T] {
	return AddNode(b, name, func(_ context.Context, _ *Context, in T) (T, error) { return in, nil })
}

// NodeAppendPrompt appends the messages produced by build and passes its
// input through.
func NodeAppendPrompt[T any](b *StrategyBuilder, name string, build func(pb *core.PromptBuilder)) *Node[T, T] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, in T) (T, error) {
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			s.UpdatePrompt(build)
			return nil
		})
		return in, err
	})
}

// NodeAppendTemplate renders tmpl with the run state values plus "input"
// (the node input) and "run_input" and appends it as a user message.
func NodeAppendTemplate[T any](b *StrategyBuilder, name string, tmpl string) *Node[T, T] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, in T) (T, error) {
		data := ac.State.Values()
		data["input"] = in
		data["run_input"] = ac.Input

		text, err := util.RenderTemplate(tmpl, data)
		if err != nil {
			return in, fmt.Errorf("node %s: %w", name, err)
		}
		err = ac.Write(ctx, func(s *llm.WriteSession) error {
			s.UpdatePrompt(func(pb *core.PromptBuilder) { pb.User(text) })
			return nil
		})
		return in, err
	})
}

func appendUser(s *llm.WriteSession, text string) {
	if text != "" {
		s.UpdatePrompt(func(pb *core.PromptBuilder) { pb.User(text) })
	}
}

// NodeLLMRequest appends its input as a user message and requests the model
// with the tools in scope. The output is the tool call if the model issued
// one, otherwise its answer.
func NodeLLMRequest(b *StrategyBuilder, name string) *Node[string, core.Message] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, in string) (core.Message, error) {
		var out core.Message
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			appendUser(s, in)
			var err error
			out, err = s.RequestLLM(ctx)
			return err
		})
		return out, err
	})
}

// NodeLLMRequestMultiple is like NodeLLMRequest but yields every response
// message, so parallel tool calls can be executed together.
func NodeLLMRequestMultiple(b *StrategyBuilder, name string) *Node[string, []core.Message] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, in string) ([]core.Message, error) {
		var out []core.Message
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			appendUser(s, in)
			var err error
			out, err = s.RequestLLMMultiple(ctx)
			return err
		})
		return out, err
	})
}

// NodeLLMRequestWithoutTools requests the model without offering any tool.
func NodeLLMRequestWithoutTools(b *StrategyBuilder, name string) *Node[string, core.Message] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, in string) (core.Message, error) {
		var out core.Message
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			appendUser(s, in)
			var err error
			out, err = s.RequestLLMWithoutTools(ctx)
			return err
		})
		return out, err
	})
}

// NodeExecuteTool executes a single tool call through the environment. Tool
// failures become failed results; a terminating tool ends the run.
func NodeExecuteTool(b *StrategyBuilder, name string) *Node[core.ToolCallMessage, core.ReceivedToolResult] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, call core.ToolCallMessage) (core.ReceivedToolResult, error) {
		results, err := ac.Environment.ExecuteTools(ctx, []core.ToolCallMessage{call})
		if err != nil {
			return core.ReceivedToolResult{}, err
		}
		if len(results) != 1 {
			return core.ReceivedToolResult{}, ac.Environment.ReportProblem(ctx,
				fmt.Errorf("environment returned %d results for 1 call", len(results)))
		}
		return results[0], nil
	})
}

// NodeExecuteMultipleTools executes a batch of tool calls. Results keep the
// order of the calls.
func NodeExecuteMultipleTools(b *StrategyBuilder, name string) *Node[[]core.ToolCallMessage, []core.ReceivedToolResult] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, calls []core.ToolCallMessage) ([]core.ReceivedToolResult, error) {
		results, err := ac.Environment.ExecuteTools(ctx, calls)
		if err != nil {
			return nil, err
		}
		if len(results) != len(calls) {
			return nil, ac.Environment.ReportProblem(ctx,
				fmt.Errorf("environment returned %d results for %d calls", len(results), len(calls)))
		}
		return results, nil
	})
}

// NodeLLMSendToolResult appends a tool result to the prompt and requests
// the model in the same write.
func NodeLLMSendToolResult(b *StrategyBuilder, name string) *Node[core.ReceivedToolResult, core.Message] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, result core.ReceivedToolResult) (core.Message, error) {
		var out core.Message
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			s.AppendMessages(result.ToMessage())
			var err error
			out, err = s.RequestLLM(ctx)
			return err
		})
		return out, err
	})
}

// NodeLLMSendMultipleToolResults appends tool results in order and requests
// the model in the same write.
func NodeLLMSendMultipleToolResults(b *StrategyBuilder, name string) *Node[[]core.ReceivedToolResult, []core.Message] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, results []core.ReceivedToolResult) ([]core.Message, error) {
		var out []core.Message
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			for _, r := range results {
				s.AppendMessages(r.ToMessage())
			}
			var err error
			out, err = s.RequestLLMMultiple(ctx)
			return err
		})
		return out, err
	})
}

// CompressOptions configure NodeLLMCompressHistory.
type CompressOptions struct {
	// Instruction asks the model for the summary.
	Instruction string
	// KeepSystem keeps the leading system messages ahead of the summary.
	KeepSystem bool
}

// NodeLLMCompressHistory asks the model to summarize the conversation and
// replaces the history with that summary. The input passes through.
func NodeLLMCompressHistory[T any](b *StrategyBuilder, name string, optFns ...func(o *CompressOptions)) *Node[T, T] {
	opts := CompressOptions{
		Instruction: SummarizeHistoryInstruction,
		KeepSystem:  true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return AddNode(b, name, func(ctx context.Context, ac *Context, in T) (T, error) {
		err := ac.Write(ctx, func(s *llm.WriteSession) error {
			original := s.Prompt()
			s.UpdatePrompt(func(pb *core.PromptBuilder) { pb.User(opts.Instruction) })

			summary, err := s.RequestLLMWithoutTools(ctx)
			if err != nil {
				return err
			}

			var kept []core.Message
			if opts.KeepSystem {
				for _, m := range original.Messages() {
					if m.Role() != core.RoleSystem {
						break
					}
					kept = append(kept, m)
				}
			}
			kept = append(kept, core.AssistantMessage{
				Text: summary.Content(),
				Meta: core.MessageMetadata{Timestamp: summary.Metadata().Timestamp},
			})
			s.SetPrompt(original.WithMessages(kept))
			return nil
		})
		return in, err
	})
}
