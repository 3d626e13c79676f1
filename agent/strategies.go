package agent

// ToolCallsMode selects how a predefined strategy executes tool calls.
type ToolCallsMode int

const (
	// ToolCallsSequential executes one tool call per model turn.
	ToolCallsSequential ToolCallsMode = iota
	// ToolCallsParallel executes every tool call of a model turn as a batch.
	ToolCallsParallel
)

// SingleRunStrategy sends the run input to the model, executes the tool
// calls it issues and feeds the results back until the model answers
// without calling a tool. The answer is the run result.
func SingleRunStrategy(mode ToolCallsMode) *Strategy {
	name := "single_run"
	if mode == ToolCallsParallel {
		name = "single_run_parallel"
	}

	b := NewStrategy(name)
	addToolLoop(b, mode, b.Start(), Identity[string]())

	return b.MustBuild()
}

// PlanAndExecuteStrategy first asks the model for a plan of the run input
// without offering tools. It then works through the plan in the tool loop of
// SingleRunStrategy.
func PlanAndExecuteStrategy(mode ToolCallsMode) *Strategy {
	name := "plan_execute"
	if mode == ToolCallsParallel {
		name = "plan_execute_parallel"
	}

	b := NewStrategy(name)
	plan := NodeLLMPlan(b, "plan")

	Forward(b, b.Start(), plan, nil)
	addToolLoop(b, mode, plan, PlanInstruction())

	return b.MustBuild()
}

// GenerateVerifyStrategy generates an answer without tools and checks it
// with v. A failed answer is regenerated once with the verifier feedback;
// the second answer is the result whatever its verdict. The last
// verification is stored under VerificationKey.
func GenerateVerifyStrategy(v Verifier) *Strategy {
	b := NewStrategy("generate_verify")
	addVerifiedGeneration(b, b.Start(), Identity[string](), v)

	return b.MustBuild()
}

// DeliberateStrategy reasons about the run input, asks the user through c
// when the reasoning finds gaps, plans, and finally generates and verifies
// the answer like GenerateVerifyStrategy. A nil c never asks; a nil v
// accepts the first answer.
func DeliberateStrategy(c Clarifier, v Verifier) *Strategy {
	b := NewStrategy("deliberate")
	think := NodeChainOfThought(b, "chain-of-thought")
	clarify := NodeAskClarification(b, "clarify", c)
	plan := NodeLLMPlan(b, "plan")

	Forward(b, b.Start(), think, nil)
	Forward(b, think, clarify, OnCondition(func(r Reasoning) bool { return c != nil && r.NeedsClarification }))
	AddEdge(b, think, plan, nil, Map(func(r Reasoning) string { return r.Task }))
	Forward(b, clarify, plan, nil)
	addVerifiedGeneration(b, plan, PlanInstruction(), v)

	return b.MustBuild()
}

// addToolLoop wires the request, execute and send-result cycle after from.
func addToolLoop[FI, FO any](b *StrategyBuilder, mode ToolCallsMode, from *Node[FI, FO], transform Transform[FO, string]) {
	if mode == ToolCallsParallel {
		callLLM := NodeLLMRequestMultiple(b, "call-llm")
		executeTools := NodeExecuteMultipleTools(b, "execute-tools")
		sendResults := NodeLLMSendMultipleToolResults(b, "send-tool-results")

		AddEdge(b, from, callLLM, nil, transform)
		AddEdge(b, callLLM, executeTools, OnMultipleToolCalls(), ToolCalls())
		AddEdge(b, callLLM, b.Finish(), OnMultipleAssistantMessages(), AssistantTexts())
		Forward(b, executeTools, sendResults, nil)
		AddEdge(b, sendResults, executeTools, OnMultipleToolCalls(), ToolCalls())
		AddEdge(b, sendResults, b.Finish(), OnMultipleAssistantMessages(), AssistantTexts())

		return
	}

	callLLM := NodeLLMRequest(b, "call-llm")
	executeTool := NodeExecuteTool(b, "execute-tool")
	sendResult := NodeLLMSendToolResult(b, "send-tool-result")

	AddEdge(b, from, callLLM, nil, transform)
	AddEdge(b, callLLM, executeTool, OnToolCall(), AsToolCall())
	AddEdge(b, callLLM, b.Finish(), OnAssistantMessage(), AssistantText())
	Forward(b, executeTool, sendResult, nil)
	AddEdge(b, sendResult, executeTool, OnToolCall(), AsToolCall())
	AddEdge(b, sendResult, b.Finish(), OnAssistantMessage(), AssistantText())
}

// addVerifiedGeneration wires generate, verify and a single regenerate
// attempt after from.
func addVerifiedGeneration[FI, FO any](b *StrategyBuilder, from *Node[FI, FO], transform Transform[FO, string], v Verifier) {
	generate := NodeLLMRequestWithoutTools(b, "generate")
	verify := NodeVerify(b, "verify", v)
	regenerate := NodeLLMRequestWithoutTools(b, "regenerate")
	reverify := NodeVerify(b, "verify-again", v)

	AddEdge(b, from, generate, nil, transform)
	AddEdge(b, generate, verify, nil, AssistantText())
	AddEdge(b, verify, b.Finish(), OnVerified(), Candidate())
	AddEdge(b, verify, regenerate, nil, RetryInstruction())
	AddEdge(b, regenerate, reverify, nil, AssistantText())
	AddEdge(b, reverify, b.Finish(), nil, Candidate())
}
