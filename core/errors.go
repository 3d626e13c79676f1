package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatchingEdge is returned when no outgoing edge of a node accepts its
	// output. It signals a graph definition bug.
	ErrNoMatchingEdge = errors.New("no matching edge")

	// ErrMaxIterationsExceeded is returned when a run executes more nodes than
	// its configured maximum.
	ErrMaxIterationsExceeded = errors.New("max iterations exceeded")

	// ErrFeatureNotInstalled is returned by required feature lookups.
	ErrFeatureNotInstalled = errors.New("feature not installed")

	// ErrSessionClosed is the panic value raised when a session is used after
	// its scope ended.
	ErrSessionClosed = errors.New("session closed")

	// ErrToolNotFound is returned when a tool name is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrNodeInputMismatch is returned when an edge delivers a value whose type
	// differs from the target node's input type.
	ErrNodeInputMismatch = errors.New("node input type mismatch")

	// ErrProblemReported wraps problems surfaced through Environment.ReportProblem.
	ErrProblemReported = errors.New("problem reported")

	// ErrAbortRun may be wrapped by a feature handler error to fail the run
	// instead of being contained by the pipeline.
	ErrAbortRun = errors.New("run aborted")
)

// TerminationError signals a graceful early stop carrying a result payload.
type TerminationError struct {
	Result string
	// Tool is set when the termination was requested by a tool call.
	Tool string
}

func (e *TerminationError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("terminated by tool %s: %s", e.Tool, e.Result)
	}
	return fmt.Sprintf("terminated: %s", e.Result)
}

// AsTermination reports whether err carries a *TerminationError.
func AsTermination(err error) (*TerminationError, bool) {
	var te *TerminationError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// NodeError attaches the failing node name to an error.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %s: %v", e.Node, e.Err) }

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error { return e.Err }
