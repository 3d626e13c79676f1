package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentgraph"
	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/internal/testutil"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

func newTracedAgent(t *testing.T, exec model.PromptExecutor, tools *tool.Registry) (*agentgraph.Agent, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	a, err := agentgraph.New(agent.SingleRunStrategy(agent.ToolCallsSequential), exec, func(o *agentgraph.Options) {
		o.ID = "traced"
		o.Tools = tools
		o.Features = []feature.Installer{Use(func(c *Config) {
			c.TracerProvider = tp
			c.CaptureContent = true
		})}
	})
	require.NoError(t, err)

	return a, sr
}

func spansByName(sr *tracetest.SpanRecorder) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range sr.Ended() {
		out[s.Name()] = s
	}
	return out
}

func TestTracing_SpanHierarchy(t *testing.T) {
	exec := model.NewMockExecutor().
		WhenLastContains("echo").RespondToolCall("echo", `{"text":"pong"}`).
		WhenLastContains("pong").RespondText("done")

	a, sr := newTracedAgent(t, exec, tool.MustRegistry(testutil.EchoTool("echo", 0)))

	_, err := a.Run(context.Background(), "echo ping")
	require.NoError(t, err)

	spans := spansByName(sr)
	for _, name := range []string{
		"agent.run",
		"strategy single_run",
		"node __start__",
		"node call-llm",
		"node execute-tool",
		"node send-tool-result",
		"llm.call",
		"tool.call echo",
	} {
		require.Contains(t, spans, name)
	}

	run := spans["agent.run"]
	strategy := spans["strategy single_run"]
	assert.Equal(t, run.SpanContext().SpanID(), strategy.Parent().SpanID())
	assert.Equal(t, strategy.SpanContext().SpanID(), spans["node call-llm"].Parent().SpanID())
	assert.Equal(t, spans["node execute-tool"].SpanContext().SpanID(), spans["tool.call echo"].Parent().SpanID())
	assert.Equal(t, codes.Ok, run.Status().Code)

	var llmCalls int
	for _, s := range sr.Ended() {
		if s.Name() == "llm.call" {
			llmCalls++
		}
	}
	assert.Equal(t, 2, llmCalls)

	inst, ok := a.Feature(Key)
	require.True(t, ok)
	assert.Zero(t, inst.(*Tracer).Active())
}

func TestTracing_RecordsErrors(t *testing.T) {
	exec := model.NewMockExecutor().
		WhenLastContains("fail").RespondToolCall("broken", `{}`).
		WhenAnyContains("boom").RespondError(errors.New("provider down"))

	a, sr := newTracedAgent(t, exec, tool.MustRegistry(testutil.FailingTool("broken", "boom")))

	_, err := a.Run(context.Background(), "fail please")
	require.Error(t, err)

	spans := spansByName(sr)

	toolSpan := spans["tool.call broken"]
	require.NotNil(t, toolSpan)
	assert.Equal(t, codes.Error, toolSpan.Status().Code)

	llmSpans := 0
	for _, s := range sr.Ended() {
		if s.Name() == "llm.call" && s.Status().Code == codes.Error {
			llmSpans++
		}
	}
	assert.Equal(t, 1, llmSpans)

	run := spans["agent.run"]
	assert.Equal(t, codes.Error, run.Status().Code)
	assert.Contains(t, run.Status().Description, "provider down")

	failedNode := spans["node send-tool-result"]
	assert.Equal(t, codes.Error, failedNode.Status().Code)
}
