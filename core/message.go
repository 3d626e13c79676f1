package core

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message within a Prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageMetadata carries producer supplied bookkeeping attached to a message.
type MessageMetadata struct {
	Timestamp  time.Time `json:"timestamp,omitzero"`
	TokenCount int       `json:"token_count,omitempty"`
}

// Message represents one immutable entry of a conversation. Concrete message
// types implement the unexported isMessage marker enabling a closed set:
// SystemMessage, UserMessage, AssistantMessage, ToolCallMessage and
// ToolResultMessage.
type Message interface {
	Role() Role
	// Content returns the textual payload. For tool calls this is the raw
	// JSON argument text.
	Content() string
	Metadata() MessageMetadata
	isMessage()
}

// SystemMessage holds instructions for the model.
type SystemMessage struct {
	Text string
	Meta MessageMetadata
}

func (SystemMessage) Role() Role                  { return RoleSystem }
func (m SystemMessage) Content() string           { return m.Text }
func (m SystemMessage) Metadata() MessageMetadata { return m.Meta }
func (SystemMessage) isMessage()                  {}

// UserMessage is input authored by the end user.
type UserMessage struct {
	Text string
	Meta MessageMetadata
}

func (UserMessage) Role() Role                  { return RoleUser }
func (m UserMessage) Content() string           { return m.Text }
func (m UserMessage) Metadata() MessageMetadata { return m.Meta }
func (UserMessage) isMessage()                  {}

// AssistantMessage is a plain text answer produced by the model.
type AssistantMessage struct {
	Text         string
	FinishReason string
	Meta         MessageMetadata
}

func (AssistantMessage) Role() Role                  { return RoleAssistant }
func (m AssistantMessage) Content() string           { return m.Text }
func (m AssistantMessage) Metadata() MessageMetadata { return m.Meta }
func (AssistantMessage) isMessage()                  {}

// ToolCallMessage is a request by the model to invoke a tool.
type ToolCallMessage struct {
	// ID correlates the call with its ToolResultMessage. May be empty for
	// providers that do not assign call ids.
	ID        string
	Tool      string
	Arguments string // JSON object text
	Meta      MessageMetadata
}

func (ToolCallMessage) Role() Role                  { return RoleAssistant }
func (m ToolCallMessage) Content() string           { return m.Arguments }
func (m ToolCallMessage) Metadata() MessageMetadata { return m.Meta }
func (ToolCallMessage) isMessage()                  {}

// RawArguments returns the arguments as JSON, substituting an empty object
// when the model supplied none.
func (m ToolCallMessage) RawArguments() json.RawMessage {
	if m.Arguments == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(m.Arguments)
}

// DecodeArguments unmarshals the JSON arguments into v.
func (m ToolCallMessage) DecodeArguments(v any) error {
	return json.Unmarshal(m.RawArguments(), v)
}

// ToolResultMessage carries the textual outcome of a tool call back to the model.
type ToolResultMessage struct {
	ID   string
	Tool string
	Text string
	Meta MessageMetadata
}

func (ToolResultMessage) Role() Role                  { return RoleTool }
func (m ToolResultMessage) Content() string           { return m.Text }
func (m ToolResultMessage) Metadata() MessageMetadata { return m.Meta }
func (ToolResultMessage) isMessage()                  {}

// ToolCalls returns the tool call messages contained in msgs preserving order.
func ToolCalls(msgs []Message) []ToolCallMessage {
	var calls []ToolCallMessage
	for _, m := range msgs {
		if tc, ok := m.(ToolCallMessage); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

func stamp() MessageMetadata { return MessageMetadata{Timestamp: time.Now().UTC()} }
