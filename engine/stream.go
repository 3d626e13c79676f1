package engine

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
)

// Stream is a run executing in the background.
type Stream struct {
	runID  string
	events chan feature.Event
	done   chan struct{}

	dropped atomic.Int64

	result Result
	err    error
}

// RunID returns the id of the streamed run.
func (s *Stream) RunID() string { return s.runID }

// Events returns the events of the run in emission order. The channel is
// closed when the run is done. The run never waits for a reader: an event
// that does not fit the buffer is dropped and counted by Dropped.
func (s *Stream) Events() <-chan feature.Event { return s.events }

// Dropped reports how many events did not fit the buffer.
func (s *Stream) Dropped() int { return int(s.dropped.Load()) }

// Wait blocks until the run is done and returns its outcome. Events need
// not be drained first.
func (s *Stream) Wait() (Result, error) {
	<-s.done
	return s.result, s.err
}

// Stream starts req in the background and delivers the events of that run.
func (e *Engine) Stream(ctx context.Context, req Request) *Stream {
	if req.RunID == "" {
		req.RunID = core.NewID()
	}

	size := e.config.EventBufferSize
	if size < 0 {
		size = 0
	}

	s := &Stream{
		runID:  req.RunID,
		events: make(chan feature.Event, size),
		done:   make(chan struct{}),
	}

	streamCtx, cancel := context.WithCancel(ctx)

	untap := e.pipeline.Tap(func(_ context.Context, ev feature.Event) {
		if ev.RunInfo().RunID != req.RunID {
			return
		}
		select {
		case s.events <- ev:
		default:
			s.dropped.Add(1)
			e.logger.Debug("engine.stream.event_dropped", "run_id", req.RunID, "event", ev.EventName())
		}
	})

	go func() {
		defer close(s.done)
		defer cancel()
		defer close(s.events)
		defer untap()

		s.result, s.err = e.Execute(streamCtx, req)
	}()

	return s
}
