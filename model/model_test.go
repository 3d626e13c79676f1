package model

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentgraph/core"
)

func userPrompt(text string) core.Prompt {
	return core.NewPrompt("", func(b *core.PromptBuilder) { b.System("sys").User(text) })
}

func TestMockExecutor_Default(t *testing.T) {
	m := NewMockExecutor()
	msgs, err := m.Execute(context.Background(), userPrompt("hi"), LLModel{}, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultMockResponse, msgs[0].Content())
	assert.Equal(t, 1, m.Calls())
	assert.Len(t, m.Prompts(), 1)
}

func TestMockExecutor_Rules(t *testing.T) {
	m := NewMockExecutor().
		WhenLastContains("weather").RespondToolCall("get_weather", `{"city":"Berlin"}`).
		WhenAnyContains("sys").RespondText("system seen")

	msgs, err := m.Execute(context.Background(), userPrompt("what is the weather"), LLModel{}, nil)
	require.NoError(t, err)
	call, ok := msgs[0].(core.ToolCallMessage)
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Tool)
	assert.Equal(t, "get_weather-0", call.ID)

	msgs, err = m.Execute(context.Background(), userPrompt("hello"), LLModel{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "system seen", msgs[0].Content())
}

func TestMockExecutor_Error(t *testing.T) {
	boom := errors.New("provider down")
	m := NewMockExecutor().WhenAnyContains("x").RespondError(boom)
	_, err := m.Execute(context.Background(), userPrompt("x"), LLModel{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestMockExecutor_Streaming(t *testing.T) {
	m := NewMockExecutor().SetDefault("one two three")
	chunks, errs := m.ExecuteStreaming(context.Background(), userPrompt("go"), LLModel{})

	var sb strings.Builder
	n := 0
	for c := range chunks {
		sb.WriteString(c)
		n++
	}
	assert.NoError(t, <-errs)
	assert.Equal(t, "one two three", sb.String())
	assert.Equal(t, 3, n)
}

func TestMockExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockExecutor().Execute(ctx, userPrompt("x"), LLModel{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLModel_Supports(t *testing.T) {
	m := LLModel{Provider: ProviderOpenAI, ID: "gpt-4o", Capabilities: []Capability{CapabilityTools}}
	assert.True(t, m.Supports(CapabilityTools))
	assert.False(t, m.Supports(CapabilityStreaming))
	assert.Equal(t, "openai/gpt-4o", m.String())
}

func TestRateLimitedExecutor(t *testing.T) {
	e := NewRateLimitedExecutor(NewMockExecutor(), rate.Every(time.Hour), 1)

	_, err := e.Execute(context.Background(), userPrompt("a"), LLModel{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.Execute(ctx, userPrompt("b"), LLModel{}, nil)
	assert.Error(t, err)

	_, errs := e.ExecuteStreaming(ctx, userPrompt("c"), LLModel{})
	assert.Error(t, <-errs)
}
