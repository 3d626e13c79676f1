// Package openai provides a model.PromptExecutor backed by the OpenAI Chat
// Completions API (including streaming and tool calling). It adapts the
// agentgraph prompt representation into the SDK's message format and back.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// Options configure the OpenAI executor. Prompt parameters take precedence
// over these defaults.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Executor wraps the OpenAI Chat Completions API behind model.PromptExecutor.
type Executor struct {
	client *openai.Client
	opts   Options
}

// NewExecutor creates a new executor using the official client configured
// from the environment (OPENAI_API_KEY).
func NewExecutor(optFns ...func(o *Options)) *Executor {
	client := openai.NewClient()
	return NewExecutorFromClient(&client, optFns...)
}

// NewExecutorFromClient creates a new executor from an existing client.
func NewExecutorFromClient(client *openai.Client, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{client: client, opts: opts}
}

// Execute implements model.PromptExecutor.
func (e *Executor) Execute(ctx context.Context, prompt core.Prompt, m model.LLModel, tools []tool.Descriptor) ([]core.Message, error) {
	params := e.buildParams(prompt, m, tools)

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	ch0 := resp.Choices[0]
	out := make([]core.Message, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		out = append(out, core.AssistantMessage{
			Text:         ch0.Message.Content,
			FinishReason: ch0.FinishReason,
			Meta:         core.MessageMetadata{TokenCount: int(resp.Usage.CompletionTokens)},
		})
	}
	for _, tc := range ch0.Message.ToolCalls {
		out = append(out, core.ToolCallMessage{
			ID:        tc.ID,
			Tool:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// ExecuteStreaming implements model.PromptExecutor and forwards text deltas.
func (e *Executor) ExecuteStreaming(ctx context.Context, prompt core.Prompt, m model.LLModel) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := e.client.Chat.Completions.NewStreaming(ctx, e.buildParams(prompt, m, nil))
		for stream.Next() {
			for _, ch := range stream.Current().Choices {
				if ch.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- ch.Delta.Content:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (e *Executor) buildParams(prompt core.Prompt, m model.LLModel, tools []tool.Descriptor) openai.ChatCompletionNewParams {
	modelID := e.opts.Model
	if m.ID != "" {
		modelID = m.ID
	}

	p := prompt.Params()
	temperature := e.opts.Temperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	maxTokens := e.opts.MaxCompletionTokens
	if p.MaxTokens > 0 {
		maxTokens = int64(p.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(prompt.Messages()),
		Model:               modelID,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(tools) == 0 {
		return params
	}

	defs := make([]openai.ChatCompletionToolParam, len(tools))
	for i, d := range tools {
		defs[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  d.Schema(),
			},
		}
	}
	params.Tools = defs
	params.ToolChoice = toolChoice(p.ToolChoice)
	return params
}

func toolChoice(c core.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch c.Mode {
	case core.ToolChoiceModeNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case core.ToolChoiceModeRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	case core.ToolChoiceModeNamed:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: c.Name},
			},
		}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

// buildMessages converts prompt messages into OpenAI chat messages. Runs of
// consecutive tool calls are folded into one assistant message.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	var pending []openai.ChatCompletionMessageToolCallParam

	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Role:      "assistant",
			ToolCalls: pending,
		}})
		pending = nil
	}

	for _, msg := range msgs {
		if tc, ok := msg.(core.ToolCallMessage); ok {
			pending = append(pending, openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Tool,
					Arguments: string(tc.RawArguments()),
				},
			})
			continue
		}
		flush()

		switch m := msg.(type) {
		case core.SystemMessage:
			out = append(out, openai.SystemMessage(m.Text))
		case core.UserMessage:
			out = append(out, openai.UserMessage(m.Text))
		case core.AssistantMessage:
			out = append(out, openai.AssistantMessage(m.Text))
		case core.ToolResultMessage:
			out = append(out, openai.ToolMessage(m.Text, m.ID))
		default:
			if text := strings.TrimSpace(msg.Content()); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		}
	}
	flush()
	return out
}
