package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgraph/feature"
)

// RecorderKey is the feature key of the Recorder.
const RecorderKey feature.Key = "test-recorder"

// Recorder is a feature that records every lifecycle event it observes as a
// compact string, e.g. "before-node(__start__)" or "tool-call(search)".
// It implements feature.Installer and can be installed directly:
//
//	rec := testutil.NewRecorder()
//	require.NoError(t, pipeline.Install(rec))
type Recorder struct {
	mu     sync.Mutex
	events []string
	raw    []feature.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Key implements feature.Installer.
func (r *Recorder) Key() feature.Key { return RecorderKey }

// Install implements feature.Installer.
func (r *Recorder) Install(p *feature.Pipeline) error {
	p.Provide(RecorderKey, r)
	p.InterceptBeforeAgentStarted(RecorderKey, record[feature.AgentStartedEvent](r))
	p.InterceptStrategyStarted(RecorderKey, record[feature.StrategyStartedEvent](r))
	p.InterceptBeforeNode(RecorderKey, record[feature.BeforeNodeEvent](r))
	p.InterceptAfterNode(RecorderKey, record[feature.AfterNodeEvent](r))
	p.InterceptBeforeLLMCall(RecorderKey, record[feature.BeforeLLMCallEvent](r))
	p.InterceptAfterLLMCall(RecorderKey, record[feature.AfterLLMCallEvent](r))
	p.InterceptToolCall(RecorderKey, record[feature.ToolCallEvent](r))
	p.InterceptToolValidationError(RecorderKey, record[feature.ToolValidationErrorEvent](r))
	p.InterceptToolCallFailure(RecorderKey, record[feature.ToolCallFailureEvent](r))
	p.InterceptToolCallResult(RecorderKey, record[feature.ToolCallResultEvent](r))
	p.InterceptStrategyFinished(RecorderKey, record[feature.StrategyFinishedEvent](r))
	p.InterceptAgentFinished(RecorderKey, record[feature.AgentFinishedEvent](r))
	p.InterceptAgentRunError(RecorderKey, record[feature.AgentRunErrorEvent](r))
	return nil
}

func record[E feature.Event](r *Recorder) feature.Handler[E] {
	return func(_ context.Context, e E) error {
		r.add(e)
		return nil
	}
}

func (r *Recorder) add(ev feature.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Describe(ev))
	r.raw = append(r.raw, ev)
}

// Events returns the recorded event descriptions in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Raw returns the recorded events in order.
func (r *Recorder) Raw() []feature.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]feature.Event(nil), r.raw...)
}

// Count returns how many events named name were recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.raw {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events, r.raw = nil, nil
}

// Describe renders ev as its name plus the node or tool it concerns.
func Describe(ev feature.Event) string {
	switch e := ev.(type) {
	case feature.BeforeNodeEvent:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Node)
	case feature.AfterNodeEvent:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Node)
	case feature.ToolCallEvent:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Call.Tool)
	case feature.ToolValidationErrorEvent:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Call.Tool)
	case feature.ToolCallFailureEvent:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Call.Tool)
	case feature.ToolCallResultEvent:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Call.Tool)
	default:
		return ev.EventName()
	}
}
