// Package server exposes an agentgraph.Agent over the A2A protocol.
//
// The Executor implements a2asrv.AgentExecutor. Every A2A task runs the
// agent once with the text parts of the incoming message as run input:
//
//	executor := server.NewExecutor(agent)
//	http.Handle("/", server.NewHandler(executor))
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/hupe1980/agentgraph"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/logging"
)

// ErrEmptyMessage is returned when a request carries no text.
var ErrEmptyMessage = errors.New("message has no text parts")

// Options configures an Executor.
type Options struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor bridges A2A tasks to agent runs.
//
// Task states are translated as follows:
//   - new task: TaskStateSubmitted
//   - run started: TaskStateWorking
//   - run finished or terminated: TaskStateCompleted with the run output
//   - run failed: TaskStateFailed with the error text
//   - Cancel: TaskStateCanceled
type Executor struct {
	agent  *agentgraph.Agent
	logger logging.Logger

	mu      sync.Mutex
	cancels map[a2a.TaskID]context.CancelFunc
}

// NewExecutor creates an Executor for agent.
func NewExecutor(agent *agentgraph.Agent, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Executor{
		agent:   agent,
		logger:  logging.With(opts.Logger, "agent_id", agent.ID()),
		cancels: make(map[a2a.TaskID]context.CancelFunc),
	}
}

// NewHandler serves executor as an A2A JSON-RPC endpoint.
func NewHandler(executor *Executor) http.Handler {
	return a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(executor))
}

// Execute implements a2asrv.AgentExecutor.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	input, err := textOf(reqCtx.Message)
	if err != nil {
		return err
	}

	if reqCtx.StoredTask == nil {
		if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)); err != nil {
			return fmt.Errorf("failed to write submitted event: %w", err)
		}
	}

	if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)); err != nil {
		return fmt.Errorf("failed to write working event: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.track(reqCtx.TaskID, cancel)
	defer e.untrack(reqCtx.TaskID)

	e.logger.Debug("server.task.started", "task_id", reqCtx.TaskID)

	res, err := e.agent.Execute(runCtx, input)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			// Cancel already reported the task as canceled.
			e.logger.Debug("server.task.canceled", "task_id", reqCtx.TaskID)
			return nil
		}

		e.logger.Warn("server.task.failed", "task_id", reqCtx.TaskID, "error", err)

		return e.writeFinal(ctx, reqCtx, queue, a2a.TaskStateFailed, err.Error())
	}

	e.logger.Debug("server.task.completed", "task_id", reqCtx.TaskID, "run_id", res.RunID, "status", res.Status.String())

	return e.writeFinal(ctx, reqCtx, queue, stateOf(res.Status), res.Output)
}

// Cancel implements a2asrv.AgentExecutor.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	e.mu.Lock()
	cancel, ok := e.cancels[reqCtx.TaskID]
	e.mu.Unlock()

	if ok {
		cancel()
	}

	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true

	return queue.Write(ctx, event)
}

func (e *Executor) writeFinal(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue, state a2a.TaskState, text string) error {
	var msg *a2a.Message
	if text != "" {
		msg = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
	}

	event := a2a.NewStatusUpdateEvent(reqCtx, state, msg)
	event.Final = true

	if err := queue.Write(ctx, event); err != nil {
		return fmt.Errorf("failed to write terminal event: %w", err)
	}

	return nil
}

func (e *Executor) track(id a2a.TaskID, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[id] = cancel
}

func (e *Executor) untrack(id a2a.TaskID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, id)
}

func stateOf(s engine.Status) a2a.TaskState {
	if s == engine.StatusFailed {
		return a2a.TaskStateFailed
	}

	return a2a.TaskStateCompleted
}

func textOf(msg *a2a.Message) (string, error) {
	if msg == nil {
		return "", errors.New("message not provided")
	}

	var texts []string

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			texts = append(texts, p.Text)
		case *a2a.TextPart:
			texts = append(texts, p.Text)
		}
	}

	if len(texts) == 0 {
		return "", ErrEmptyMessage
	}

	return strings.Join(texts, "\n"), nil
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)
