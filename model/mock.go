package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
)

// DefaultMockResponse is returned by a MockExecutor when no rule matches.
const DefaultMockResponse = "Default test response"

// MockExecutor is a deterministic in-memory PromptExecutor for tests and examples.
// Rules are evaluated in registration order; the first match responds.
type MockExecutor struct {
	mu              sync.Mutex
	rules           []*MockRule
	defaultResponse string
	calls           int
	prompts         []core.Prompt
}

// MockRule pairs a prompt predicate with a canned response.
type MockRule struct {
	mock     *MockExecutor
	match    func(core.Prompt) bool
	response []core.Message
	err      error
}

// NewMockExecutor constructs a MockExecutor answering DefaultMockResponse.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{defaultResponse: DefaultMockResponse}
}

// SetDefault replaces the fallback answer.
func (m *MockExecutor) SetDefault(text string) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResponse = text
	return m
}

// When registers a rule with a custom predicate.
func (m *MockExecutor) When(match func(core.Prompt) bool) *MockRule {
	r := &MockRule{mock: m, match: match}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
	return r
}

// WhenLastContains matches prompts whose last message contains substr.
func (m *MockExecutor) WhenLastContains(substr string) *MockRule {
	return m.When(func(p core.Prompt) bool {
		last, ok := p.Last()
		return ok && strings.Contains(last.Content(), substr)
	})
}

// WhenAnyContains matches prompts with any message containing substr.
func (m *MockExecutor) WhenAnyContains(substr string) *MockRule {
	return m.When(func(p core.Prompt) bool {
		for _, msg := range p.Messages() {
			if strings.Contains(msg.Content(), substr) {
				return true
			}
		}
		return false
	})
}

// RespondText answers with an assistant message.
func (r *MockRule) RespondText(text string) *MockExecutor {
	return r.RespondMessages(core.AssistantMessage{Text: text, FinishReason: "stop"})
}

// RespondToolCall answers with a single tool call.
func (r *MockRule) RespondToolCall(toolName, args string) *MockExecutor {
	return r.RespondMessages(core.ToolCallMessage{Tool: toolName, Arguments: args})
}

// RespondMessages answers with msgs. Tool calls without an ID receive a
// deterministic one derived from the tool name and position.
func (r *MockRule) RespondMessages(msgs ...core.Message) *MockExecutor {
	out := make([]core.Message, len(msgs))
	for i, msg := range msgs {
		if tc, ok := msg.(core.ToolCallMessage); ok && tc.ID == "" {
			tc.ID = fmt.Sprintf("%s-%d", tc.Tool, i)
			msg = tc
		}
		out[i] = msg
	}
	r.response = out
	return r.mock
}

// RespondError makes matching requests fail with err.
func (r *MockRule) RespondError(err error) *MockExecutor {
	r.err = err
	return r.mock
}

// Execute implements PromptExecutor.
func (m *MockExecutor) Execute(ctx context.Context, prompt core.Prompt, _ LLModel, _ []tool.Descriptor) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.respond(prompt)
}

// ExecuteStreaming implements PromptExecutor by streaming the text of the
// matching response word by word.
func (m *MockExecutor) ExecuteStreaming(ctx context.Context, prompt core.Prompt, _ LLModel) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		msgs, err := m.respond(prompt)
		if err != nil {
			errCh <- err
			return
		}
		var text strings.Builder
		for _, msg := range msgs {
			if a, ok := msg.(core.AssistantMessage); ok {
				text.WriteString(a.Text)
			}
		}
		words := strings.SplitAfter(text.String(), " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- w:
			}
		}
	}()

	return out, errCh
}

func (m *MockExecutor) respond(prompt core.Prompt) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.prompts = append(m.prompts, prompt)

	for _, r := range m.rules {
		if r.match(prompt) {
			if r.err != nil {
				return nil, r.err
			}
			out := make([]core.Message, len(r.response))
			copy(out, r.response)
			return out, nil
		}
	}
	return []core.Message{core.AssistantMessage{Text: m.defaultResponse, FinishReason: "stop"}}, nil
}

// Calls returns how many requests were served.
func (m *MockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received so far.
func (m *MockExecutor) Prompts() []core.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Prompt, len(m.prompts))
	copy(out, m.prompts)
	return out
}
