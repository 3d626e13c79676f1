// Package agent contains the graph model of an agent strategy together with
// the per run context the nodes operate on.
//
// A Strategy is built once with a StrategyBuilder and executed many times.
// Nodes are typed units of work created with AddNode (or one of the
// predefined Node* constructors) and wired explicitly with AddEdge or
// Forward:
//
//	b := agent.NewStrategy("chat")
//	callLLM := agent.NodeLLMRequest(b, "call-llm")
//	agent.Forward(b, b.Start(), callLLM, nil)
//	agent.AddEdge(b, callLLM, b.Finish(), agent.OnAssistantMessage(), agent.AssistantText())
//	strategy, err := b.Build()
//
// Outgoing edges of a node are evaluated in registration order and the first
// edge whose condition accepts the node output is taken. If none matches the
// run fails with core.ErrNoMatchingEdge.
//
// The package also provides GenericEnvironment, the default tool execution
// environment resolving tool calls against a tool.Registry.
package agent
