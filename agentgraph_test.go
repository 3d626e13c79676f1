package agentgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/internal/testutil"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, model.NewMockExecutor())
	require.Error(t, err)

	_, err = New(agent.SingleRunStrategy(agent.ToolCallsSequential), nil)
	require.Error(t, err)
}

func TestAgent_Run(t *testing.T) {
	exec := model.NewMockExecutor().
		WhenLastContains("Berlin").RespondToolCall("echo", `{"text":"sunny"}`).
		WhenLastContains("sunny").RespondText("It is sunny in Berlin.")

	rec := testutil.NewRecorder()
	a, err := New(agent.SingleRunStrategy(agent.ToolCallsSequential), exec, func(o *Options) {
		o.ID = "weather-bot"
		o.Tools = tool.MustRegistry(testutil.EchoTool("echo", 0))
		o.Features = []feature.Installer{rec}
	})
	require.NoError(t, err)

	out, err := a.Run(context.Background(), "Weather in Berlin?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Berlin.", out)

	inst, ok := a.Feature(testutil.RecorderKey)
	require.True(t, ok)
	assert.Same(t, rec, inst)

	for _, ev := range rec.Raw() {
		assert.Equal(t, "weather-bot", ev.RunInfo().AgentID)
	}
}

func TestAgent_RunsAreIndependent(t *testing.T) {
	exec := model.NewMockExecutor().SetDefault("ok")
	a, err := New(agent.SingleRunStrategy(agent.ToolCallsSequential), exec)
	require.NoError(t, err)

	first, err := a.Execute(context.Background(), "one")
	require.NoError(t, err)
	second, err := a.Execute(context.Background(), "two")
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)

	prompts := exec.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, 1, prompts[1].Len(), "second run must not see the first run's history")
}

func TestAgent_FeatureInstalledOnce(t *testing.T) {
	rec := testutil.NewRecorder()
	a, err := New(agent.SingleRunStrategy(agent.ToolCallsSequential), model.NewMockExecutor(), func(o *Options) {
		o.Features = []feature.Installer{rec, rec}
	})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count(feature.EventAgentFinished))
}

func TestAgent_RunStream(t *testing.T) {
	exec := model.NewMockExecutor().SetDefault("streamed")
	a, err := New(agent.SingleRunStrategy(agent.ToolCallsSequential), exec)
	require.NoError(t, err)

	s := a.RunStream(context.Background(), "hi")

	var names []string
	for ev := range s.Events() {
		names = append(names, ev.EventName())
	}

	res, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFinished, res.Status)
	assert.Equal(t, "streamed", res.Output)
	require.NotEmpty(t, names)
	assert.Equal(t, feature.EventBeforeAgentStarted, names[0])
	assert.Equal(t, feature.EventAgentFinished, names[len(names)-1])
}

func TestAgent_MaxIterations(t *testing.T) {
	exec := model.NewMockExecutor().SetDefault("unused")
	exec.When(func(core.Prompt) bool { return true }).RespondToolCall("echo", `{"text":"again"}`)

	a, err := New(agent.SingleRunStrategy(agent.ToolCallsSequential), exec, func(o *Options) {
		o.Tools = tool.MustRegistry(testutil.EchoTool("echo", 0))
		o.Config.MaxIterations = 5
	})
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "loop forever")
	require.ErrorIs(t, err, core.ErrMaxIterationsExceeded)
	assert.Equal(t, engine.StatusFailed, res.Status)
}

func TestNewFromConfig(t *testing.T) {
	file, err := config.Parse([]byte(`
agent:
  id: configured
  max_iterations: 10
  system_prompt: Be brief.
model:
  provider: mock
  id: test
logging:
  level: error
`))
	require.NoError(t, err)

	exec := model.NewMockExecutor().SetDefault("brief")
	a, err := NewFromConfig(file, agent.SingleRunStrategy(agent.ToolCallsSequential), exec)
	require.NoError(t, err)
	assert.Equal(t, "configured", a.ID())

	out, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "brief", out)

	prompts := exec.Prompts()
	require.Len(t, prompts, 1)
	msgs := prompts[0].Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleSystem, msgs[0].Role())
	assert.Equal(t, "Be brief.", msgs[0].Content())
}
