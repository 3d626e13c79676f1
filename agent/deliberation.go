package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/llm"
)

const chainOfThoughtTemplate = `
Think through the following task step by step before solving it:
{{quote .task}}

Answer with these sections:
Reasoning: your analysis of the task
Steps: a numbered list of steps that solve it
Missing information: a list of facts you would have to ask the user for
Ambiguities: a list of ambiguous aspects of the task
Needs clarification: yes or no
`

const clarificationTemplate = `
Ask the user between 2 and 5 short numbered questions about the task:
{{quote .task}}
{{if .missing}}
Missing information:
{{bullets .missing}}
{{end}}
{{if .ambiguities}}
Ambiguities:
{{bullets .ambiguities}}
{{end}}
`

const planTemplate = `
Create a plan for the following task:
{{quote .task}}
{{if .steps}}
Steps identified so far:
{{numbered .steps}}
{{end}}
Answer with these sections:
Plan: a numbered list of concrete steps
Requirements: a list of inputs and resources the steps rely on
`

const executePlanTemplate = `
Carry out the plan step by step and answer with the final result.
{{numbered .steps}}
{{if .requirements}}
Make sure these requirements hold:
{{bullets .requirements}}
{{end}}
`

const retryTemplate = `
The previous answer failed verification:
{{indent 2 .feedback}}

Fix the problems and answer again with the complete result.
`

// minimalAnswersNote is added when no clarification answer carries content.
const minimalAnswersNote = "The user gave minimal answers. Make reasonable assumptions where information is missing."

// Storage keys under which the deliberation nodes publish their results.
var (
	ReasoningKey    = NewStorageKey[Reasoning]("reasoning")
	PlanKey         = NewStorageKey[Plan]("plan")
	VerificationKey = NewStorageKey[Verification]("verification")
)

// Reasoning is the structured answer to a chain-of-thought request.
type Reasoning struct {
	Task               string
	Analysis           string
	Steps              []string
	MissingInformation []string
	Ambiguities        []string
	NeedsClarification bool
}

// Plan is the structured answer to a planning request.
type Plan struct {
	Task         string
	Steps        []string
	Requirements []string
}

// Verdict is the outcome of checking a candidate answer.
type Verdict struct {
	Passed   bool
	Feedback string
}

// Verification is a verdict on a candidate. Attempt counts from 1.
type Verification struct {
	Verdict

	Candidate string
	Attempt   int
}

// Verifier checks a generated answer, for example by compiling or testing it.
// An error aborts the run; a failing check is reported through the Verdict.
type Verifier interface {
	Verify(ctx context.Context, candidate string) (Verdict, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, candidate string) (Verdict, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, candidate string) (Verdict, error) {
	return f(ctx, candidate)
}

// Clarifier puts questions to the user and returns the answers in question
// order. Missing answers count as empty.
type Clarifier interface {
	Clarify(ctx context.Context, questions []string) ([]string, error)
}

// ClarifierFunc adapts a function to the Clarifier interface.
type ClarifierFunc func(ctx context.Context, questions []string) ([]string, error)

// Clarify implements Clarifier.
func (f ClarifierFunc) Clarify(ctx context.Context, questions []string) ([]string, error) {
	return f(ctx, questions)
}

// ConsoleClarifier asks every question on out and reads one answer line per
// question from in. Once in is exhausted the remaining answers are empty.
func ConsoleClarifier(in io.Reader, out io.Writer) Clarifier {
	r := bufio.NewReader(in)
	return ClarifierFunc(func(ctx context.Context, questions []string) ([]string, error) {
		answers := make([]string, len(questions))
		for i, q := range questions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fmt.Fprintf(out, "%d. %s\n> ", i+1, q)
			line, err := r.ReadString('\n')
			answers[i] = strings.TrimSpace(line)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
		}
		return answers, nil
	})
}

// NodeChainOfThought asks the model, without tools, to reason about the task
// it receives and parses the answer. The result is also stored under
// ReasoningKey.
func NodeChainOfThought(b *StrategyBuilder, name string) *Node[string, Reasoning] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, task string) (Reasoning, error) {
		answer, err := askWithoutTools(ctx, ac, name, chainOfThoughtTemplate, map[string]any{"task": task})
		if err != nil {
			return Reasoning{}, err
		}

		r := ParseReasoning(answer)
		r.Task = task
		Put(ac.Storage, ReasoningKey, r)

		ac.Logger.Debug("agent.reasoning", "node", name, "steps", len(r.Steps), "needs_clarification", r.NeedsClarification)

		return r, nil
	})
}

// NodeAskClarification lets the model phrase questions about the gaps found
// by a chain-of-thought node and puts them to the user through c. The output
// is the task extended with the questions and answers. A nil c passes the
// task through.
func NodeAskClarification(b *StrategyBuilder, name string, c Clarifier) *Node[Reasoning, string] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, r Reasoning) (string, error) {
		if c == nil {
			return r.Task, nil
		}

		answer, err := askWithoutTools(ctx, ac, name, clarificationTemplate, map[string]any{
			"task":        r.Task,
			"missing":     r.MissingInformation,
			"ambiguities": r.Ambiguities,
		})
		if err != nil {
			return "", err
		}

		questions := ParseQuestions(answer)
		if len(questions) == 0 {
			return r.Task, nil
		}

		answers, err := c.Clarify(ctx, questions)
		if err != nil {
			return "", fmt.Errorf("node %s: clarify: %w", name, err)
		}

		return ClarifiedTask(r.Task, questions, answers), nil
	})
}

// NodeLLMPlan asks the model, without tools, for a plan of the task it
// receives. Steps of an earlier chain-of-thought node are handed to the
// model. The result is also stored under PlanKey.
func NodeLLMPlan(b *StrategyBuilder, name string) *Node[string, Plan] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, task string) (Plan, error) {
		data := map[string]any{"task": task}
		if r, ok := Lookup(ac.Storage, ReasoningKey); ok {
			data["steps"] = r.Steps
		}

		answer, err := askWithoutTools(ctx, ac, name, planTemplate, data)
		if err != nil {
			return Plan{}, err
		}

		p := ParsePlan(answer)
		p.Task = task
		Put(ac.Storage, PlanKey, p)

		return p, nil
	})
}

// NodeVerify checks its input with v. Every verification is stored under
// VerificationKey with a running attempt number. A nil v accepts everything.
func NodeVerify(b *StrategyBuilder, name string, v Verifier) *Node[string, Verification] {
	return AddNode(b, name, func(ctx context.Context, ac *Context, candidate string) (Verification, error) {
		res := Verification{Candidate: candidate, Attempt: 1, Verdict: Verdict{Passed: true}}
		if prev, ok := Lookup(ac.Storage, VerificationKey); ok {
			res.Attempt = prev.Attempt + 1
		}

		if v != nil {
			verdict, err := v.Verify(ctx, candidate)
			if err != nil {
				return Verification{}, fmt.Errorf("node %s: verify: %w", name, err)
			}
			res.Verdict = verdict
		}

		Put(ac.Storage, VerificationKey, res)
		ac.Logger.Debug("agent.verification", "node", name, "attempt", res.Attempt, "passed", res.Passed)

		return res, nil
	})
}

// PlanInstruction renders the request to carry out p.
func PlanInstruction() Transform[Plan, string] {
	return func(_ context.Context, _ *Context, p Plan) (string, error) {
		return util.RenderPrompt(executePlanTemplate, map[string]any{
			"steps":        p.Steps,
			"requirements": p.Requirements,
		})
	}
}

// RetryInstruction renders the request to fix a failed candidate.
func RetryInstruction() Transform[Verification, string] {
	return func(_ context.Context, _ *Context, v Verification) (string, error) {
		return util.RenderPrompt(retryTemplate, map[string]any{"feedback": v.Feedback})
	}
}

// OnVerified accepts passed verifications.
func OnVerified() Condition[Verification] {
	return OnCondition(func(v Verification) bool { return v.Passed })
}

// Candidate yields the verified candidate.
func Candidate() Transform[Verification, string] {
	return Map(func(v Verification) string { return v.Candidate })
}

func askWithoutTools(ctx context.Context, ac *Context, node, tmpl string, data map[string]any) (string, error) {
	text, err := util.RenderPrompt(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("node %s: %w", node, err)
	}

	var answer core.Message
	err = ac.Write(ctx, func(s *llm.WriteSession) error {
		appendUser(s, text)
		var err error
		answer, err = s.RequestLLMWithoutTools(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	return answer.Content(), nil
}

// ParseReasoning reads the sections of a chain-of-thought answer. Unknown
// lines before the first section are ignored.
func ParseReasoning(text string) Reasoning {
	s := parseSections(text, "reasoning", "steps", "missing information", "ambiguities", "needs clarification")

	r := Reasoning{
		Analysis:           strings.Join(s["reasoning"], "\n"),
		Steps:              listItems(s["steps"]),
		MissingInformation: listItems(s["missing information"]),
		Ambiguities:        listItems(s["ambiguities"]),
	}

	if v := s["needs clarification"]; len(v) > 0 {
		r.NeedsClarification = strings.HasPrefix(strings.ToLower(v[0]), "yes")
	}

	return r
}

// ParsePlan reads the sections of a planning answer.
func ParsePlan(text string) Plan {
	s := parseSections(text, "plan", "requirements")

	return Plan{
		Steps:        listItems(s["plan"]),
		Requirements: listItems(s["requirements"]),
	}
}

// ParseQuestions extracts numbered, bulleted or question-mark terminated
// lines. Without any such line the whole text is one question.
func ParseQuestions(text string) []string {
	var questions []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if item, ok := listItem(line); ok {
			questions = append(questions, item)
		} else if strings.HasSuffix(line, "?") {
			questions = append(questions, line)
		}
	}

	if len(questions) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			questions = []string{t}
		}
	}

	return questions
}

// ClarifiedTask appends the questions and their answers to task. When no
// answer has content a note asks the model to assume reasonable defaults.
func ClarifiedTask(task string, questions, answers []string) string {
	var sb strings.Builder

	sb.WriteString(task)
	sb.WriteString("\n\nClarification:\n")

	substantive := false
	for i, q := range questions {
		a := ""
		if i < len(answers) {
			a = strings.TrimSpace(answers[i])
		}
		if isSubstantive(a) {
			substantive = true
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q, a)
	}

	if !substantive {
		sb.WriteString("\n")
		sb.WriteString(minimalAnswersNote)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func isSubstantive(answer string) bool {
	if len(answer) <= 3 {
		return false
	}
	switch strings.ToLower(answer) {
	case "none", "n/a":
		return false
	}
	return true
}

// parseSections groups the lines of text under "name:" headers. Headers may
// carry list or markdown decoration and inline content.
func parseSections(text string, names ...string) map[string][]string {
	sections := make(map[string][]string, len(names))
	current := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		header := strings.ToLower(strings.TrimLeft(line, "-*#• "))
		matched := false
		for _, name := range names {
			if !strings.HasPrefix(header, name) {
				continue
			}
			rest := strings.TrimLeft(header[len(name):], "* ")
			if !strings.HasPrefix(rest, ":") {
				continue
			}

			current, matched = name, true
			// keep the original casing of inline content
			if inline := inlineContent(line); inline != "" {
				sections[name] = append(sections[name], inline)
			}
			break
		}

		if !matched && current != "" {
			sections[current] = append(sections[current], line)
		}
	}

	return sections
}

func inlineContent(line string) string {
	_, after, _ := strings.Cut(line, ":")
	return strings.TrimSpace(strings.TrimLeft(after, "* "))
}

// listItems joins continuation lines to the preceding item and drops
// placeholder items such as "None".
func listItems(lines []string) []string {
	var items []string

	for _, line := range lines {
		if item, ok := listItem(line); ok {
			items = append(items, item)
		} else if len(items) > 0 {
			items[len(items)-1] += " " + line
		} else {
			items = append(items, line)
		}
	}

	out := items[:0]
	for _, item := range items {
		switch strings.ToLower(strings.TrimRight(item, ".")) {
		case "none", "n/a", "-":
			continue
		}
		out = append(out, item)
	}

	return out
}

// listItem strips a "- ", "* ", "• ", "1. " or "1) " marker.
func listItem(line string) (string, bool) {
	for _, p := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):]), true
		}
	}

	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:]), true
	}

	return "", false
}
