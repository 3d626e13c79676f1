package model

import (
	"context"
	"slices"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
)

// Provider names the vendor behind an LLModel.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderMock      Provider = "mock"
)

// Capability is a feature a model supports.
type Capability string

const (
	CapabilityTools       Capability = "tools"
	CapabilityToolChoice  Capability = "tool_choice"
	CapabilityStreaming   Capability = "streaming"
	CapabilityTemperature Capability = "temperature"
)

// LLModel identifies the model a prompt is sent to.
type LLModel struct {
	Provider      Provider
	ID            string
	Capabilities  []Capability
	ContextLength int
}

// Supports reports whether the model declares capability c.
func (m LLModel) Supports(c Capability) bool { return slices.Contains(m.Capabilities, c) }

// String returns provider/id.
func (m LLModel) String() string { return string(m.Provider) + "/" + m.ID }

// PromptExecutor sends prompts to a language model. Implementations wrap a
// provider SDK and must be safe for concurrent use.
type PromptExecutor interface {
	// Execute sends prompt together with the tool descriptors in scope and
	// returns the response messages: assistant text, tool calls or both.
	Execute(ctx context.Context, prompt core.Prompt, model LLModel, tools []tool.Descriptor) ([]core.Message, error)

	// ExecuteStreaming streams text chunks of the answer. Both channels are
	// closed when the stream ends; at most one error is delivered.
	ExecuteStreaming(ctx context.Context, prompt core.Prompt, model LLModel) (<-chan string, <-chan error)
}
