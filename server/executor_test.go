package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph"
	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/internal/testutil"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// recordingQueue only implements Write; the executor never reads.
type recordingQueue struct {
	eventqueue.Queue

	mu     sync.Mutex
	events []*a2a.TaskStatusUpdateEvent
}

func (q *recordingQueue) Write(_ context.Context, ev a2a.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if su, ok := ev.(*a2a.TaskStatusUpdateEvent); ok {
		q.events = append(q.events, su)
	}

	return nil
}

func (q *recordingQueue) states() []a2a.TaskState {
	q.mu.Lock()
	defer q.mu.Unlock()

	states := make([]a2a.TaskState, 0, len(q.events))
	for _, ev := range q.events {
		states = append(states, ev.Status.State)
	}

	return states
}

func (q *recordingQueue) last() *a2a.TaskStatusUpdateEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.events[len(q.events)-1]
}

func newRequest(text string) *a2asrv.RequestContext {
	return &a2asrv.RequestContext{
		TaskID:    a2a.TaskID("task-1"),
		ContextID: "ctx-1",
		Message:   a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text}),
	}
}

func newAgent(t *testing.T, exec model.PromptExecutor, optFns ...func(o *agentgraph.Options)) *agentgraph.Agent {
	t.Helper()

	a, err := agentgraph.New(agent.SingleRunStrategy(agent.ToolCallsSequential), exec, optFns...)
	require.NoError(t, err)

	return a
}

func TestExecutor_Execute_Completed(t *testing.T) {
	exec := model.NewMockExecutor().WhenLastContains("ping").RespondText("pong")
	e := NewExecutor(newAgent(t, exec))
	q := &recordingQueue{}

	require.NoError(t, e.Execute(context.Background(), newRequest("ping"), q))

	assert.Equal(t, []a2a.TaskState{a2a.TaskStateSubmitted, a2a.TaskStateWorking, a2a.TaskStateCompleted}, q.states())

	final := q.last()
	assert.True(t, final.Final)
	require.NotNil(t, final.Status.Message)
	require.Len(t, final.Status.Message.Parts, 1)
	assert.Equal(t, a2a.TextPart{Text: "pong"}, final.Status.Message.Parts[0])
}

func TestExecutor_Execute_ExistingTaskSkipsSubmitted(t *testing.T) {
	e := NewExecutor(newAgent(t, model.NewMockExecutor().SetDefault("ok")))
	q := &recordingQueue{}

	req := newRequest("again")
	req.StoredTask = &a2a.Task{ID: req.TaskID, ContextID: req.ContextID}

	require.NoError(t, e.Execute(context.Background(), req, q))
	assert.Equal(t, []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateCompleted}, q.states())
}

func TestExecutor_Execute_Failed(t *testing.T) {
	exec := model.NewMockExecutor().WhenLastContains("boom").RespondError(errors.New("provider down"))
	e := NewExecutor(newAgent(t, exec))
	q := &recordingQueue{}

	require.NoError(t, e.Execute(context.Background(), newRequest("boom"), q))

	final := q.last()
	assert.Equal(t, a2a.TaskStateFailed, final.Status.State)
	assert.True(t, final.Final)
	require.NotNil(t, final.Status.Message)
	part, ok := final.Status.Message.Parts[0].(a2a.TextPart)
	require.True(t, ok)
	assert.Contains(t, part.Text, "provider down")
}

func TestExecutor_Execute_EmptyMessage(t *testing.T) {
	e := NewExecutor(newAgent(t, model.NewMockExecutor()))
	q := &recordingQueue{}

	req := newRequest("")
	req.Message = a2a.NewMessage(a2a.MessageRoleUser)

	err := e.Execute(context.Background(), req, q)
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, q.states())

	req.Message = nil
	require.Error(t, e.Execute(context.Background(), req, q))
}

func TestExecutor_Cancel(t *testing.T) {
	exec := model.NewMockExecutor().WhenLastContains("slow").RespondToolCall("echo", `{"text":"zzz"}`)
	e := NewExecutor(newAgent(t, exec, func(o *agentgraph.Options) {
		o.Tools = tool.MustRegistry(testutil.EchoTool("echo", time.Minute))
	}))
	q := &recordingQueue{}
	req := newRequest("slow")

	done := make(chan error, 1)
	go func() { done <- e.Execute(context.Background(), req, q) }()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		_, ok := e.cancels[req.TaskID]
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Cancel(context.Background(), req, q))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("execute did not return after cancel")
	}

	assert.Equal(t, []a2a.TaskState{a2a.TaskStateSubmitted, a2a.TaskStateWorking, a2a.TaskStateCanceled}, q.states())
	assert.True(t, q.last().Final)
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, a2a.TaskStateCompleted, stateOf(engine.StatusFinished))
	assert.Equal(t, a2a.TaskStateCompleted, stateOf(engine.StatusTerminated))
	assert.Equal(t, a2a.TaskStateFailed, stateOf(engine.StatusFailed))
}
