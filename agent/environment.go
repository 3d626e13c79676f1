package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/tool"
)

// EnvironmentOptions configure the GenericEnvironment.
type EnvironmentOptions struct {
	// MaxParallel bounds concurrently executing tool calls of one batch.
	// 0 or <1 means no explicit limit.
	MaxParallel int
	Logger      logging.Logger
}

// DefaultEnvironmentOptions are applied before caller overrides.
var DefaultEnvironmentOptions = EnvironmentOptions{
	MaxParallel: 0,
	Logger:      logging.NoOpLogger{},
}

// GenericEnvironment resolves tool calls against a tool.Registry. It:
//   - Emits a tool call event per call before anything executes
//   - Validates arguments against the tool schema
//   - Executes the batch concurrently, recovering panics
//   - Returns exactly one result per call in call order
//   - Turns failures into textual results the model can react to
//   - Ends the run when a terminating tool succeeded
//
// Result events are emitted after the whole batch completed, in call order,
// so the event sequence does not depend on tool latencies.
type GenericEnvironment struct {
	tools    *tool.Registry
	pipeline *feature.Pipeline
	info     core.RunInfo
	opts     EnvironmentOptions
}

// NewGenericEnvironment creates the environment of one run.
func NewGenericEnvironment(tools *tool.Registry, pipeline *feature.Pipeline, info core.RunInfo, optFns ...func(o *EnvironmentOptions)) *GenericEnvironment {
	opts := DefaultEnvironmentOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if pipeline == nil {
		pipeline = feature.NewPipeline()
	}
	return &GenericEnvironment{tools: tools, pipeline: pipeline, info: info, opts: opts}
}

type outcome struct {
	result     any
	invalid    error
	err        error
	terminates bool
}

// ExecuteTools implements core.Environment.
func (e *GenericEnvironment) ExecuteTools(ctx context.Context, calls []core.ToolCallMessage) ([]core.ReceivedToolResult, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}

	for _, c := range calls {
		if err := e.pipeline.Emit(ctx, feature.ToolCallEvent{Run: e.info, Call: c}); err != nil {
			return nil, err
		}
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	outcomes := make([]outcome, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPar)

	batchStart := time.Now()
	for i, c := range calls {
		g.Go(func() error {
			outcomes[i] = e.execute(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.opts.Logger.Debug("environment.tools.batch.complete",
		"run_id", e.info.RunID,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	results := make([]core.ReceivedToolResult, n)
	var termination *core.TerminationError
	for i, c := range calls {
		o := outcomes[i]
		var err error
		switch {
		case o.invalid != nil:
			results[i] = failure(c, o.invalid)
			err = e.pipeline.Emit(ctx, feature.ToolValidationErrorEvent{Run: e.info, Call: c, Err: o.invalid})
		case o.err != nil:
			results[i] = failure(c, o.err)
			err = e.pipeline.Emit(ctx, feature.ToolCallFailureEvent{Run: e.info, Call: c, Err: o.err})
		default:
			results[i] = core.ReceivedToolResult{ID: c.ID, Tool: c.Tool, Content: tool.Render(o.result), Result: o.result}
			err = e.pipeline.Emit(ctx, feature.ToolCallResultEvent{Run: e.info, Call: c, Result: results[i]})
			if o.terminates && termination == nil {
				termination = &core.TerminationError{Result: results[i].Content, Tool: c.Tool}
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if termination != nil {
		return results, termination
	}
	return results, nil
}

func (e *GenericEnvironment) execute(ctx context.Context, c core.ToolCallMessage) (o outcome) {
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}

	t, err := e.tools.Get(c.Tool)
	if err != nil {
		return outcome{invalid: &tool.ToolError{Tool: c.Tool, Message: err.Error(), Code: tool.CodeNotFound, Err: err}}
	}
	if err := e.tools.Validate(c.Tool, c.RawArguments()); err != nil {
		return outcome{invalid: err}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: panicError(r)}
			e.opts.Logger.Error("environment.tool.panic", "run_id", e.info.RunID, "tool", c.Tool, "recover", r)
		}
		e.opts.Logger.Info("environment.tool.executed",
			"run_id", e.info.RunID,
			"tool", c.Tool,
			"tool_call_id", c.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", o.err != nil,
		)
	}()

	result, err := t.Execute(ctx, c.RawArguments())
	if err != nil {
		return outcome{err: err}
	}
	return outcome{result: result, terminates: tool.IsTerminator(t)}
}

// ReportProblem implements core.Environment. The returned error fails the
// run when a node propagates it.
func (e *GenericEnvironment) ReportProblem(_ context.Context, err error) error {
	e.opts.Logger.Error("environment.problem", "run_id", e.info.RunID, "error", err.Error())
	return fmt.Errorf("%w: %w", core.ErrProblemReported, err)
}

// SendTermination implements core.Environment.
func (e *GenericEnvironment) SendTermination(_ context.Context, result string) error {
	e.opts.Logger.Info("environment.termination", "run_id", e.info.RunID)
	return &core.TerminationError{Result: result}
}

// failure renders a failed call. The content is the message of a
// *tool.ToolError when there is one.
func failure(c core.ToolCallMessage, err error) core.ReceivedToolResult {
	msg := err.Error()
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) && toolErr.Message != "" {
		msg = toolErr.Message
	}
	return core.ReceivedToolResult{ID: c.ID, Tool: c.Tool, Content: msg}
}

// panicError converts a recovered panic value to an error without pulling external dependencies.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

var _ core.Environment = (*GenericEnvironment)(nil)
