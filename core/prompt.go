package core

// ToolChoiceMode controls whether and how the model may call tools.
type ToolChoiceMode string

const (
	ToolChoiceModeAuto     ToolChoiceMode = "auto"
	ToolChoiceModeNone     ToolChoiceMode = "none"
	ToolChoiceModeRequired ToolChoiceMode = "required"
	ToolChoiceModeNamed    ToolChoiceMode = "named"
)

// ToolChoice is the tool selection policy sent with a prompt. The zero value
// means automatic selection.
type ToolChoice struct {
	Mode ToolChoiceMode
	// Name is set only for ToolChoiceModeNamed.
	Name string
}

// ToolChoiceAuto lets the model decide.
func ToolChoiceAuto() ToolChoice { return ToolChoice{Mode: ToolChoiceModeAuto} }

// ToolChoiceNone forbids tool calls.
func ToolChoiceNone() ToolChoice { return ToolChoice{Mode: ToolChoiceModeNone} }

// ToolChoiceRequired forces at least one tool call.
func ToolChoiceRequired() ToolChoice { return ToolChoice{Mode: ToolChoiceModeRequired} }

// ToolChoiceNamed forces a call of the named tool.
func ToolChoiceNamed(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceModeNamed, Name: name}
}

// IsAuto reports whether the choice leaves selection to the model.
func (c ToolChoice) IsAuto() bool { return c.Mode == "" || c.Mode == ToolChoiceModeAuto }

// Params are the generation parameters attached to a Prompt.
type Params struct {
	Temperature *float64
	MaxTokens   int
	ToolChoice  ToolChoice
}

// Prompt is an immutable ordered conversation plus generation parameters.
// Every "mutation" returns a new value; the receiver is never changed.
type Prompt struct {
	id       string
	messages []Message
	params   Params
}

// NewPrompt builds a prompt. An empty id is replaced by a generated one.
func NewPrompt(id string, build func(b *PromptBuilder)) Prompt {
	if id == "" {
		id = NewID()
	}
	b := &PromptBuilder{}
	if build != nil {
		build(b)
	}
	return Prompt{id: id, messages: b.messages}
}

// EmptyPrompt returns a prompt without messages.
func EmptyPrompt() Prompt { return NewPrompt("", nil) }

// ID returns the prompt identifier.
func (p Prompt) ID() string { return p.id }

// Messages returns a copy of the ordered message list.
func (p Prompt) Messages() []Message {
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Len returns the number of messages.
func (p Prompt) Len() int { return len(p.messages) }

// Last returns the most recent message.
func (p Prompt) Last() (Message, bool) {
	if len(p.messages) == 0 {
		return nil, false
	}
	return p.messages[len(p.messages)-1], true
}

// Params returns the generation parameters.
func (p Prompt) Params() Params { return p.params }

// Append returns a new prompt with msgs added at the end.
func (p Prompt) Append(msgs ...Message) Prompt {
	out := make([]Message, 0, len(p.messages)+len(msgs))
	out = append(out, p.messages...)
	out = append(out, msgs...)
	p.messages = out
	return p
}

// WithMessages returns a new prompt holding a copy of msgs.
func (p Prompt) WithMessages(msgs []Message) Prompt {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	p.messages = out
	return p
}

// WithParams returns a new prompt with params replaced.
func (p Prompt) WithParams(params Params) Prompt {
	p.params = params
	return p
}

// WithToolChoice returns a new prompt with only the tool choice replaced.
func (p Prompt) WithToolChoice(choice ToolChoice) Prompt {
	p.params.ToolChoice = choice
	return p
}

// Update returns a new prompt with the messages produced by build appended.
func (p Prompt) Update(build func(b *PromptBuilder)) Prompt {
	b := &PromptBuilder{}
	build(b)
	return p.Append(b.messages...)
}

// PromptBuilder accumulates messages for NewPrompt and Prompt.Update.
type PromptBuilder struct {
	messages []Message
}

// System appends a system message.
func (b *PromptBuilder) System(text string) *PromptBuilder {
	return b.Message(SystemMessage{Text: text, Meta: stamp()})
}

// User appends a user message.
func (b *PromptBuilder) User(text string) *PromptBuilder {
	return b.Message(UserMessage{Text: text, Meta: stamp()})
}

// Assistant appends an assistant text message.
func (b *PromptBuilder) Assistant(text string) *PromptBuilder {
	return b.Message(AssistantMessage{Text: text, Meta: stamp()})
}

// ToolCall appends a tool call message.
func (b *PromptBuilder) ToolCall(id, tool, args string) *PromptBuilder {
	return b.Message(ToolCallMessage{ID: id, Tool: tool, Arguments: args, Meta: stamp()})
}

// ToolResult appends a tool result message.
func (b *PromptBuilder) ToolResult(id, tool, text string) *PromptBuilder {
	return b.Message(ToolResultMessage{ID: id, Tool: tool, Text: text, Meta: stamp()})
}

// Message appends an arbitrary message.
func (b *PromptBuilder) Message(m Message) *PromptBuilder {
	b.messages = append(b.messages, m)
	return b
}
