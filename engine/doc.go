// Package engine executes agent strategies.
//
// An Engine turns a Request (strategy, executor, tools, configuration and
// input) into a single run:
//
//  1. The per run context is assembled: a GenericEnvironment over the tool
//     registry wrapped by every environment decorator the installed features
//     registered, a fresh llm.Context seeded with the configured prompt, the
//     tools selected by the strategy and the configured model, and a new run
//     state with its iteration limiter.
//  2. before-agent-started and strategy-started are emitted.
//  3. Starting at the start node, each step counts an iteration, emits
//     before-node, executes the node, emits after-node and follows the first
//     edge that accepts the output.
//  4. Reaching the finish node emits strategy-finished followed by
//     agent-finished. A terminating tool or SendTermination ends the run as
//     Terminated and also emits agent-finished. Every other error ends the run
//     as Failed and emits agent-run-error exactly once.
//
// Only one node of a run executes at a time. Separate runs share nothing but
// the feature pipeline and may execute concurrently up to
// Config.MaxConcurrentRuns.
//
// Streaming
//
// Stream runs a request in the background and delivers the events of that
// run on a buffered channel. Consumers must drain Events or cancel the
// context; a full buffer blocks the run.
package engine
