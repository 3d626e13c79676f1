package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/llm"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

type eventLog struct {
	mu     sync.Mutex
	events []feature.Event
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.EventName()
	}
	return out
}

func newTestContext(t *testing.T, exec model.PromptExecutor, tools *tool.Registry) (*Context, *eventLog) {
	t.Helper()

	p := feature.NewPipeline()
	log := &eventLog{}
	untap := p.Tap(func(_ context.Context, ev feature.Event) {
		log.mu.Lock()
		log.events = append(log.events, ev)
		log.mu.Unlock()
	})
	t.Cleanup(untap)

	info := core.RunInfo{AgentID: "agent", RunID: "run-1", StrategyName: "test"}
	llmCtx := llm.NewContext(exec, func(o *llm.Options) {
		o.Tools = tools.Descriptors()
		o.Observer = p
		o.RunInfo = info
	})
	env := NewGenericEnvironment(tools, p, info)
	ac := NewContext(llmCtx, env, func(o *ContextOptions) {
		o.Info = info
		o.Input = "input"
		o.Pipeline = p
	})
	return ac, log
}

// walk traverses s the way the engine does, without events or limits.
func walk(ctx context.Context, ac *Context, s *Strategy, input string) (string, []string, error) {
	var visited []string
	var current Vertex = s.Start()
	var in any = input
	for {
		visited = append(visited, current.Name())
		out, err := current.Execute(ctx, ac, in)
		if err != nil {
			return "", visited, err
		}
		next, nextIn, err := current.Next(ctx, ac, out)
		if err != nil {
			return "", visited, err
		}
		if next.IsFinish() {
			return nextIn.(string), visited, nil
		}
		current, in = next, nextIn
	}
}
