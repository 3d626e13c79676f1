package feature

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/llm"
)

type countingConfig struct {
	Label string
}

type countingFeature struct {
	installs *int
	fail     bool
}

func (countingFeature) Key() Key { return "counting" }

func (countingFeature) DefaultConfig() countingConfig { return countingConfig{Label: "default"} }

func (f countingFeature) Install(cfg countingConfig, p *Pipeline) error {
	*f.installs++
	p.Provide(f.Key(), cfg.Label)
	p.InterceptBeforeNode(f.Key(), func(context.Context, BeforeNodeEvent) error { return nil })
	if f.fail {
		return errors.New("install failed")
	}
	return nil
}

func TestPipeline_InstallIsIdempotentPerKey(t *testing.T) {
	p := NewPipeline()
	installs := 0
	f := countingFeature{installs: &installs}

	require.NoError(t, p.Install(Use[countingConfig](f, func(c *countingConfig) { c.Label = "custom" })))
	require.NoError(t, p.Install(Use[countingConfig](f)))

	assert.Equal(t, 1, installs)
	assert.True(t, p.IsInstalled("counting"))
	assert.Equal(t, []Key{"counting"}, p.Installed())

	v, ok := p.Instance("counting")
	require.True(t, ok)
	assert.Equal(t, "custom", v)
}

func TestPipeline_FailedInstallRollsBack(t *testing.T) {
	p := NewPipeline()
	installs := 0

	err := p.Install(Use[countingConfig](countingFeature{installs: &installs, fail: true}))
	require.Error(t, err)

	assert.False(t, p.IsInstalled("counting"))
	_, ok := p.Instance("counting")
	assert.False(t, ok)
	assert.Empty(t, p.handlers[EventBeforeNode])
}

func TestPipeline_EmitOrderAndIsolation(t *testing.T) {
	p := NewPipeline()
	var calls []string

	p.InterceptBeforeNode("a", func(_ context.Context, e BeforeNodeEvent) error {
		calls = append(calls, "a1:"+e.Node)
		return errors.New("ignored")
	})
	p.InterceptBeforeNode("b", func(context.Context, BeforeNodeEvent) error {
		calls = append(calls, "b")
		panic("boom")
	})
	p.InterceptBeforeNode("a", func(context.Context, BeforeNodeEvent) error {
		calls = append(calls, "a2")
		return nil
	})
	p.InterceptAfterNode("a", func(context.Context, AfterNodeEvent) error {
		calls = append(calls, "after")
		return nil
	})

	err := p.Emit(context.Background(), BeforeNodeEvent{Node: "n"})
	require.NoError(t, err)
	require.NoError(t, p.Emit(context.Background(), AfterNodeEvent{Node: "n"}))

	assert.Equal(t, []string{"a1:n", "b", "a2", "after"}, calls)
}

func TestPipeline_AbortRunPropagates(t *testing.T) {
	p := NewPipeline()
	ran := false

	p.InterceptStrategyStarted("guard", func(context.Context, StrategyStartedEvent) error {
		return fmt.Errorf("budget exhausted: %w", core.ErrAbortRun)
	})
	p.InterceptStrategyStarted("other", func(context.Context, StrategyStartedEvent) error {
		ran = true
		return nil
	})

	err := p.Emit(context.Background(), StrategyStartedEvent{})
	assert.ErrorIs(t, err, core.ErrAbortRun)
	assert.True(t, ran, "later handlers still run")
}

func TestPipeline_Tap(t *testing.T) {
	p := NewPipeline()
	var seen []string
	untap := p.Tap(func(_ context.Context, ev Event) { seen = append(seen, ev.EventName()) })

	_ = p.Emit(context.Background(), StrategyStartedEvent{})
	untap()
	_ = p.Emit(context.Background(), StrategyFinishedEvent{})

	assert.Equal(t, []string{EventStrategyStarted}, seen)
}

type stubEnv struct{ name string }

func (stubEnv) ExecuteTools(context.Context, []core.ToolCallMessage) ([]core.ReceivedToolResult, error) {
	return nil, nil
}
func (stubEnv) ReportProblem(_ context.Context, err error) error { return err }
func (stubEnv) SendTermination(context.Context, string) error    { return nil }

type namedEnv struct {
	core.Environment
	name string
}

func TestPipeline_EnvironmentWrappersApplyInOrder(t *testing.T) {
	p := NewPipeline()
	p.WrapEnvironment("outer", func(e core.Environment) core.Environment { return namedEnv{Environment: e, name: "first"} })
	p.WrapEnvironment("outer", func(e core.Environment) core.Environment { return namedEnv{Environment: e, name: "second"} })

	env := p.Environment(stubEnv{})
	outer, ok := env.(namedEnv)
	require.True(t, ok)
	assert.Equal(t, "second", outer.name)
	assert.Equal(t, "first", outer.Environment.(namedEnv).name)
}

func TestPipeline_ObservesLLMCalls(t *testing.T) {
	p := NewPipeline()
	var names []string
	p.InterceptBeforeLLMCall("x", func(context.Context, BeforeLLMCallEvent) error {
		names = append(names, "before")
		return nil
	})
	p.InterceptAfterLLMCall("x", func(_ context.Context, e AfterLLMCallEvent) error {
		names = append(names, "after:"+e.Responses[0].Content())
		return nil
	})

	var obs llm.CallObserver = p
	obs.BeforeLLMCall(context.Background(), llm.CallInfo{})
	obs.AfterLLMCall(context.Background(), llm.CallInfo{}, []core.Message{core.AssistantMessage{Text: "ok"}}, nil)

	assert.Equal(t, []string{"before", "after:ok"}, names)
}

func TestIntercept_RejectsInterfaceType(t *testing.T) {
	assert.Panics(t, func() {
		Intercept[Event](NewPipeline(), "x", func(context.Context, Event) error { return nil })
	})
}
