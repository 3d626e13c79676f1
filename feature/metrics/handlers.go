package metrics

import (
	"context"

	"github.com/hupe1980/agentgraph/feature"
)

func (m *Metrics) onAgentStarted(context.Context, feature.AgentStartedEvent) error {
	m.RunsActive.Inc()
	return nil
}

func (m *Metrics) onAgentFinished(_ context.Context, e feature.AgentFinishedEvent) error {
	status := RunStatusFinished
	if e.Terminated {
		status = RunStatusTerminated
	}
	m.endRun(e.Run.RunID, status)
	return nil
}

func (m *Metrics) onAgentRunError(_ context.Context, e feature.AgentRunErrorEvent) error {
	m.endRun(e.Run.RunID, RunStatusFailed)
	return nil
}

func (m *Metrics) endRun(runID, status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunsActive.Dec()

	m.mu.Lock()
	delete(m.nodeStarts, runID)
	m.mu.Unlock()
}

func (m *Metrics) onBeforeNode(_ context.Context, e feature.BeforeNodeEvent) error {
	m.NodeExecutionsTotal.WithLabelValues(e.Run.StrategyName, e.Node).Inc()

	m.mu.Lock()
	m.nodeStarts[e.Run.RunID] = m.now()
	m.mu.Unlock()

	return nil
}

func (m *Metrics) onAfterNode(_ context.Context, e feature.AfterNodeEvent) error {
	m.mu.Lock()
	start, ok := m.nodeStarts[e.Run.RunID]
	delete(m.nodeStarts, e.Run.RunID)
	m.mu.Unlock()

	if ok {
		m.NodeDuration.WithLabelValues(e.Run.StrategyName, e.Node).Observe(m.now().Sub(start).Seconds())
	}

	return nil
}

func (m *Metrics) onAfterLLMCall(_ context.Context, e feature.AfterLLMCallEvent) error {
	provider, id := string(e.Model.Provider), e.Model.ID
	m.LLMCallsTotal.WithLabelValues(provider, id).Inc()
	if e.Err != nil {
		m.LLMCallErrorsTotal.WithLabelValues(provider, id).Inc()
	}
	return nil
}

func (m *Metrics) onToolValidationError(_ context.Context, e feature.ToolValidationErrorEvent) error {
	m.ToolCallsTotal.WithLabelValues(e.Call.Tool, ToolStatusValidationError).Inc()
	return nil
}

func (m *Metrics) onToolCallFailure(_ context.Context, e feature.ToolCallFailureEvent) error {
	m.ToolCallsTotal.WithLabelValues(e.Call.Tool, ToolStatusFailure).Inc()
	return nil
}

func (m *Metrics) onToolCallResult(_ context.Context, e feature.ToolCallResultEvent) error {
	m.ToolCallsTotal.WithLabelValues(e.Call.Tool, ToolStatusSuccess).Inc()
	return nil
}
