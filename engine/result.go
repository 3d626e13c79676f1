package engine

// Status is the lifecycle state of a run.
type Status int

const (
	// StatusPending means the run has not started executing yet.
	StatusPending Status = iota
	// StatusRunning means the strategy is being traversed.
	StatusRunning
	// StatusFinished means the finish node was reached.
	StatusFinished
	// StatusTerminated means a tool or node requested termination.
	StatusTerminated
	// StatusFailed means the run ended with an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusTerminated:
		return "terminated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether s is a terminal status.
func (s Status) Done() bool {
	return s == StatusFinished || s == StatusTerminated || s == StatusFailed
}

// Result is the outcome of a run.
type Result struct {
	RunID  string
	Status Status
	// Output is the finish node input for Finished runs and the termination
	// payload for Terminated runs.
	Output string
	// Iterations is the number of node executions the run counted.
	Iterations int
}
