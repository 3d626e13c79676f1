package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

func sleepyTool(name string, d time.Duration, running *atomic.Int32, peak *atomic.Int32) tool.Tool {
	return tool.NewFunctionTool(tool.Descriptor{Name: name}, func(ctx context.Context, _ map[string]any) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-time.After(d):
			return name + " done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestGenericEnvironment_PreservesCallOrder(t *testing.T) {
	var running, peak atomic.Int32
	reg := tool.MustRegistry(
		sleepyTool("slow", 60*time.Millisecond, &running, &peak),
		sleepyTool("fast", 5*time.Millisecond, &running, &peak),
		sleepyTool("medium", 30*time.Millisecond, &running, &peak),
	)
	ac, log := newTestContext(t, model.NewMockExecutor(), reg)

	calls := []core.ToolCallMessage{
		{ID: "1", Tool: "slow"},
		{ID: "2", Tool: "fast"},
		{ID: "3", Tool: "medium"},
	}
	results, err := ac.Environment.ExecuteTools(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ID)
		assert.Equal(t, calls[i].Tool+" done", r.Content)
		assert.False(t, r.IsFailure())
	}
	assert.Equal(t, int32(3), peak.Load(), "calls run concurrently")
	assert.Equal(t, []string{
		feature.EventToolCall, feature.EventToolCall, feature.EventToolCall,
		feature.EventToolCallResult, feature.EventToolCallResult, feature.EventToolCallResult,
	}, log.names())
}

func TestGenericEnvironment_MaxParallel(t *testing.T) {
	var running, peak atomic.Int32
	reg := tool.MustRegistry(
		sleepyTool("a", 10*time.Millisecond, &running, &peak),
		sleepyTool("b", 10*time.Millisecond, &running, &peak),
		sleepyTool("c", 10*time.Millisecond, &running, &peak),
	)
	env := NewGenericEnvironment(reg, nil, core.RunInfo{}, func(o *EnvironmentOptions) { o.MaxParallel = 1 })

	_, err := env.ExecuteTools(context.Background(), []core.ToolCallMessage{{Tool: "a"}, {Tool: "b"}, {Tool: "c"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestGenericEnvironment_Failures(t *testing.T) {
	failing := tool.NewFunctionTool(tool.Descriptor{Name: "failing"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("service unavailable")
	})
	panicking := tool.NewFunctionTool(tool.Descriptor{Name: "panicking"}, func(context.Context, map[string]any) (any, error) {
		panic("nil map")
	})
	strict := tool.NewFunctionTool(tool.Descriptor{
		Name:     "strict",
		Required: []tool.Parameter{{Name: "n", Type: tool.TypeInteger}},
	}, func(context.Context, map[string]any) (any, error) { return "ok", nil })

	ac, log := newTestContext(t, model.NewMockExecutor(), tool.MustRegistry(failing, panicking, strict))

	results, err := ac.Environment.ExecuteTools(context.Background(), []core.ToolCallMessage{
		{ID: "1", Tool: "failing"},
		{ID: "2", Tool: "panicking"},
		{ID: "3", Tool: "strict", Arguments: `{"n":"x"}`},
		{ID: "4", Tool: "unknown"},
	})
	require.NoError(t, err, "tool failures are recovered locally")
	require.Len(t, results, 4)

	for _, r := range results {
		assert.True(t, r.IsFailure(), r.Tool)
		assert.Nil(t, r.Result)
	}
	assert.Equal(t, "service unavailable", results[0].Content)
	assert.Contains(t, results[1].Content, "panic recovered: nil map")
	assert.Contains(t, results[2].Content, "parameter validation failed")
	assert.Contains(t, results[3].Content, "tool not found")

	assert.Equal(t, []string{
		feature.EventToolCall, feature.EventToolCall, feature.EventToolCall, feature.EventToolCall,
		feature.EventToolCallFailure, feature.EventToolCallFailure,
		feature.EventToolValidationError, feature.EventToolValidationError,
	}, log.names())
}

func TestGenericEnvironment_TerminatingTool(t *testing.T) {
	ac, _ := newTestContext(t, model.NewMockExecutor(), tool.MustRegistry(tool.Exit()))

	results, err := ac.Environment.ExecuteTools(context.Background(), []core.ToolCallMessage{
		{ID: "1", Tool: tool.ExitName, Arguments: `{"message":"all done"}`},
	})
	te, ok := core.AsTermination(err)
	require.True(t, ok, "expected termination, got %v", err)
	assert.Equal(t, "all done", te.Result)
	assert.Equal(t, tool.ExitName, te.Tool)
	require.Len(t, results, 1)
}

func TestGenericEnvironment_Cancellation(t *testing.T) {
	var running, peak atomic.Int32
	reg := tool.MustRegistry(sleepyTool("slow", time.Second, &running, &peak))
	env := NewGenericEnvironment(reg, nil, core.RunInfo{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := env.ExecuteTools(ctx, []core.ToolCallMessage{{Tool: "slow"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGenericEnvironment_AbortingHandler(t *testing.T) {
	p := feature.NewPipeline()
	p.InterceptToolCall("guard", func(context.Context, feature.ToolCallEvent) error {
		return core.ErrAbortRun
	})
	executed := false
	reg := tool.MustRegistry(tool.NewFunctionTool(tool.Descriptor{Name: "t"}, func(context.Context, map[string]any) (any, error) {
		executed = true
		return "x", nil
	}))
	env := NewGenericEnvironment(reg, p, core.RunInfo{})

	_, err := env.ExecuteTools(context.Background(), []core.ToolCallMessage{{Tool: "t"}})
	assert.ErrorIs(t, err, core.ErrAbortRun)
	assert.False(t, executed)
}

func TestGenericEnvironment_ProblemAndTermination(t *testing.T) {
	env := NewGenericEnvironment(nil, nil, core.RunInfo{})
	cause := errors.New("disk full")

	err := env.ReportProblem(context.Background(), cause)
	assert.ErrorIs(t, err, core.ErrProblemReported)
	assert.ErrorIs(t, err, cause)

	te, ok := core.AsTermination(env.SendTermination(context.Background(), "stop"))
	require.True(t, ok)
	assert.Equal(t, "stop", te.Result)
}
