package core

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPrompt_BuilderAndAccessors(t *testing.T) {
	p := NewPrompt("p1", func(b *PromptBuilder) {
		b.System("be brief").User("hi").ToolCall("c1", "search", `{"q":"x"}`).ToolResult("c1", "search", "found")
	})

	if p.ID() != "p1" || p.Len() != 4 {
		t.Fatalf("unexpected prompt: id=%s len=%d", p.ID(), p.Len())
	}
	msgs := p.Messages()
	if msgs[0].Role() != RoleSystem || msgs[1].Role() != RoleUser || msgs[2].Role() != RoleAssistant || msgs[3].Role() != RoleTool {
		t.Fatalf("roles out of order: %v", msgs)
	}
	if msgs[1].Metadata().Timestamp.IsZero() {
		t.Fatal("expected builder to stamp messages")
	}
	last, ok := p.Last()
	if !ok || last.Content() != "found" {
		t.Fatalf("unexpected last message: %v", last)
	}
}

func TestPrompt_AppendDoesNotMutateReceiver(t *testing.T) {
	base := NewPrompt("", func(b *PromptBuilder) { b.User("one") })
	next := base.Append(AssistantMessage{Text: "two"})

	if base.Len() != 1 {
		t.Fatalf("receiver mutated: len=%d", base.Len())
	}
	if next.Len() != 2 || next.ID() != base.ID() {
		t.Fatalf("unexpected appended prompt: %d %s", next.Len(), next.ID())
	}

	msgs := next.Messages()
	msgs[0] = UserMessage{Text: "tampered"}
	if m, _ := next.Last(); m.Content() != "two" {
		t.Fatal("Last changed")
	}
	if next.Messages()[0].Content() != "one" {
		t.Fatal("Messages must return a copy")
	}
}

func TestPrompt_Params(t *testing.T) {
	temp := 0.2
	p := EmptyPrompt().WithParams(Params{Temperature: &temp, MaxTokens: 10})
	q := p.WithToolChoice(ToolChoiceNamed("exit"))

	if !p.Params().ToolChoice.IsAuto() {
		t.Fatal("zero tool choice should be auto")
	}
	if q.Params().ToolChoice.Name != "exit" || q.Params().MaxTokens != 10 {
		t.Fatalf("unexpected params: %+v", q.Params())
	}
}

func TestToolCallMessage_Arguments(t *testing.T) {
	var args struct {
		Q string `json:"q"`
	}
	if err := (ToolCallMessage{Arguments: `{"q":"go"}`}).DecodeArguments(&args); err != nil || args.Q != "go" {
		t.Fatalf("decode failed: %v %+v", err, args)
	}
	if string((ToolCallMessage{}).RawArguments()) != "{}" {
		t.Fatal("empty arguments should default to an object")
	}
}

func TestToolCalls_FiltersInOrder(t *testing.T) {
	msgs := []Message{
		AssistantMessage{Text: "thinking"},
		ToolCallMessage{ID: "a", Tool: "t1"},
		ToolCallMessage{ID: "b", Tool: "t2"},
	}
	calls := ToolCalls(msgs)
	if len(calls) != 2 || calls[0].ID != "a" || calls[1].ID != "b" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestReceivedToolResult_IsFailure(t *testing.T) {
	if !(ReceivedToolResult{Content: "boom"}).IsFailure() {
		t.Fatal("nil result with content is a failure")
	}
	if (ReceivedToolResult{Content: "42", Result: 42}).IsFailure() {
		t.Fatal("structured result is not a failure")
	}
	msg := ReceivedToolResult{ID: "c1", Tool: "calc", Content: "42", Result: 42}.ToMessage()
	if msg.ID != "c1" || msg.Tool != "calc" || msg.Text != "42" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestPrompt_AppendProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("append grows by exactly n and keeps the prefix", prop.ForAll(
		func(prefix, extra []string) bool {
			p := EmptyPrompt()
			for _, s := range prefix {
				p = p.Append(UserMessage{Text: s})
			}
			toAdd := make([]Message, len(extra))
			for i, s := range extra {
				toAdd[i] = AssistantMessage{Text: s}
			}
			q := p.Append(toAdd...)
			if q.Len() != p.Len()+len(extra) || p.Len() != len(prefix) {
				return false
			}
			msgs := q.Messages()
			for i, s := range prefix {
				if msgs[i].Content() != s {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
