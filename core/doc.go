// Package core provides the foundational domain types shared by every
// agentgraph package. It defines:
//
//   - Messages (immutable role tagged conversation entries)
//   - Prompt (immutable ordered conversation plus generation parameters)
//   - Environment (the tool execution bridge used by graph nodes)
//   - RunInfo and the iteration limiter tracking a single run
//   - The error taxonomy surfaced by the engine
//
// The package has no dependencies on the rest of the module so that tools,
// executors and features can all refer to the same vocabulary.
package core
