// Package anthropic provides a model.PromptExecutor for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// Options configures the Anthropic executor (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Executor wraps the Anthropic Messages API behind model.PromptExecutor.
type Executor struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewExecutor creates a new executor using the official client.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Executor{client: &client, opts: opts}
}

// NewExecutorFromClient creates a new executor from an existing client.
func NewExecutorFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{client: client, opts: opts}
}

// Execute implements model.PromptExecutor.
func (e *Executor) Execute(ctx context.Context, prompt core.Prompt, m model.LLModel, tools []tool.Descriptor) ([]core.Message, error) {
	params := e.buildParams(prompt, m)
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
		params.ToolChoice = toolChoice(prompt.Params().ToolChoice)
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	var out []core.Message
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				out = append(out, core.AssistantMessage{
					Text:         textBlock.Text,
					FinishReason: finishReason,
					Meta:         core.MessageMetadata{TokenCount: int(resp.Usage.OutputTokens)},
				})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			out = append(out, core.ToolCallMessage{ID: toolBlock.ID, Tool: toolBlock.Name, Arguments: args})
		}
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

		stream := e.client.Messages.NewStreaming(ctx, e.buildParams(prompt, m))
		for stream.Next() {
			ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- delta.Text:
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

func (e *Executor) buildParams(prompt core.Prompt, m model.LLModel) anthropic.MessageNewParams {
	modelID := e.opts.Model
	if m.ID != "" {
		modelID = anthropic.Model(m.ID)
	}

	p := prompt.Params()
	temperature := e.opts.Temperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	maxTokens := e.opts.MaxTokens
	if p.MaxTokens > 0 {
		maxTokens = int64(p.MaxTokens)
	}

	msgs := prompt.Messages()
	params := anthropic.MessageNewParams{
		Model:       modelID,
		Messages:    buildMessages(msgs),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if system := systemBlocks(msgs); len(system) > 0 {
		params.System = system
	}
	return params
}

// buildMessages converts prompt messages to the Anthropic format. Tool calls
// become tool_use blocks on assistant turns; tool results are user turns.
// Consecutive blocks of the same role are merged into one turn.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var role core.Role
	var blocks []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	add := func(r core.Role, b anthropic.ContentBlockParamUnion) {
		if r != role {
			flush()
			role = r
		}
		blocks = append(blocks, b)
	}

	for _, msg := range msgs {
		switch m := msg.(type) {
		case core.SystemMessage:
			// sent separately
		case core.UserMessage:
			if m.Text != "" {
				add(core.RoleUser, anthropic.NewTextBlock(m.Text))
			}
		case core.AssistantMessage:
			if m.Text != "" {
				add(core.RoleAssistant, anthropic.NewTextBlock(m.Text))
			}
		case core.ToolCallMessage:
			var input any
			if err := json.Unmarshal(m.RawArguments(), &input); err != nil {
				input = m.Arguments
			}
			add(core.RoleAssistant, anthropic.NewToolUseBlock(m.ID, input, m.Tool))
		case core.ToolResultMessage:
			add(core.RoleUser, anthropic.NewToolResultBlock(m.ID, m.Text, false))
		}
	}
	flush()
	return out
}

func systemBlocks(msgs []core.Message) []anthropic.TextBlockParam {
	var out []anthropic.TextBlockParam
	for _, msg := range msgs {
		if s, ok := msg.(core.SystemMessage); ok && s.Text != "" {
			out = append(out, anthropic.TextBlockParam{Text: s.Text})
		}
	}
	return out
}

func toolChoice(c core.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch c.Mode {
	case core.ToolChoiceModeNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case core.ToolChoiceModeRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case core.ToolChoiceModeNamed:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: c.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// buildTools converts tool descriptors to the Anthropic tool format.
func buildTools(tools []tool.Descriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, d := range tools {
		schema := d.Schema()
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: schema["properties"],
			Required:   d.RequiredNames(),
		}
		t := anthropic.ToolUnionParamOfTool(inputSchema, d.Name)
		if t.OfTool != nil && d.Description != "" {
			t.OfTool.Description = anthropic.String(d.Description)
		}
		out[i] = t
	}
	return out
}
