// Package model defines the provider agnostic abstractions for interacting
// with language models inside agentgraph.
//
// Core goals:
//   - Hide vendor SDKs behind a single PromptExecutor interface
//   - Describe the selected model (LLModel) independently of the transport
//   - Facilitate deterministic mocking for tests (MockExecutor)
//
// Providers (see the openai and anthropic subpackages) implement
// PromptExecutor so the graph engine remains decoupled from vendor SDKs.
package model
