package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
)

func TestBuildMessages_AlternatesRoles(t *testing.T) {
	p := core.NewPrompt("", func(b *core.PromptBuilder) {
		b.System("sys").User("hi").
			ToolCall("c1", "a", `{"x":1}`).ToolCall("c2", "b", "").
			ToolResult("c1", "a", "ra").ToolResult("c2", "b", "rb").
			Assistant("done")
	})

	msgs := buildMessages(p.Messages())
	require.Len(t, msgs, 4)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[3].Role)

	system := systemBlocks(p.Messages())
	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]tool.Descriptor{{
		Name:        "weather",
		Description: "Get weather",
		Required:    []tool.Parameter{{Name: "city", Type: tool.TypeString}},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "weather", tools[0].OfTool.Name)
	assert.Equal(t, []string{"city"}, tools[0].OfTool.InputSchema.Required)
}

func TestToolChoice(t *testing.T) {
	assert.NotNil(t, toolChoice(core.ToolChoice{}).OfAuto)
	assert.NotNil(t, toolChoice(core.ToolChoiceRequired()).OfAny)
	named := toolChoice(core.ToolChoiceNamed("exit"))
	require.NotNil(t, named.OfTool)
	assert.Equal(t, "exit", named.OfTool.Name)
}
