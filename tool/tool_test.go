package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
)

// -------------------- Schema & Validation Tests --------------------

func sumDescriptor() Descriptor {
	return Descriptor{
		Name:        "sum",
		Description: "Add numbers",
		Required: []Parameter{
			{Name: "a", Type: TypeFloat},
			{Name: "b", Type: TypeFloat},
		},
		Optional: []Parameter{
			{Name: "mode", Type: TypeEnum("fast", "exact")},
			{Name: "tags", Type: TypeList(TypeString)},
		},
	}
}

func sumTool() *FunctionTool {
	return NewFunctionTool(sumDescriptor(), func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestDescriptor_Schema(t *testing.T) {
	schema := sumDescriptor().Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "mode")
	assert.ElementsMatch(t, []any{"a", "b"}, schema["required"])

	mode := props["mode"].(map[string]any)
	assert.Equal(t, []any{"fast", "exact"}, mode["enum"])
	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])
}

func TestRegistry_Validate(t *testing.T) {
	r := MustRegistry(sumTool())

	assert.NoError(t, r.Validate("sum", json.RawMessage(`{"a":1,"b":2}`)))

	err := r.Validate("sum", json.RawMessage(`{"a":1}`))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	err = r.Validate("sum", json.RawMessage(`{"a":"one","b":2}`))
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	err = r.Validate("sum", json.RawMessage(`{"a":1,"b":2,"mode":"slow"}`))
	assert.Error(t, err)

	err = r.Validate("missing", nil)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
	assert.ErrorIs(t, err, core.ErrToolNotFound)
}

// -------------------- Registry Tests --------------------

func TestRegistry_DuplicateAndOrder(t *testing.T) {
	_, err := NewRegistry(sumTool(), sumTool())
	assert.ErrorIs(t, err, ErrDuplicateTool)

	r := MustRegistry(SayToUser(&bytes.Buffer{}), Exit(), sumTool())
	names := []string{}
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{SayToUserName, ExitName, "sum"}, names)
	assert.Equal(t, 3, r.Len())

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	sub, err := r.Subset("sum")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.Len())

	merged, err := sub.Merge(MustRegistry(Exit()))
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())

	_, err = r.Merge(sub)
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Descriptors())
	_, err := r.Get("x")
	assert.ErrorIs(t, err, core.ErrToolNotFound)
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Execute(context.Background(), json.RawMessage(`{"a":2,"b":3}`))
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool(Descriptor{Name: "fail"}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Execute(context.Background(), nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_PreservesToolError(t *testing.T) {
	custom := NewToolError("quota", "limit reached", "QUOTA")
	execTool := NewFunctionTool(Descriptor{Name: "quota"}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, custom
	})
	_, err := execTool.Execute(context.Background(), json.RawMessage(`{}`))
	assert.Same(t, custom, err)
}

func TestFunctionTool_BadJSON(t *testing.T) {
	_, err := sumTool().Execute(context.Background(), json.RawMessage(`[1,2]`))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestTypedTool(t *testing.T) {
	type args struct {
		City string `json:"city"`
	}
	weather := NewTypedTool(Descriptor{Name: "weather"}, func(_ context.Context, a args) (any, error) {
		return "sunny in " + a.City, nil
	})
	result, err := weather.Execute(context.Background(), json.RawMessage(`{"city":"Berlin"}`))
	require.NoError(t, err)
	assert.Equal(t, "sunny in Berlin", result)
}

// -------------------- Built-in Tests --------------------

func TestSayToUser(t *testing.T) {
	var buf bytes.Buffer
	say := SayToUser(&buf)
	result, err := say.Execute(context.Background(), json.RawMessage(`{"message":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "DONE", result)
	assert.Equal(t, "Agent says: hello\n", buf.String())
	assert.False(t, IsTerminator(say))
}

func TestExit(t *testing.T) {
	exit := Exit()
	assert.True(t, IsTerminator(exit))
	result, err := exit.Execute(context.Background(), json.RawMessage(`{"message":"bye"}`))
	require.NoError(t, err)
	assert.Equal(t, "bye", result)
}

type stringer struct{}

func (stringer) String() string { return "custom" }

func TestRender(t *testing.T) {
	assert.Equal(t, "", Render(nil))
	assert.Equal(t, "text", Render("text"))
	assert.Equal(t, "custom", Render(stringer{}))
	assert.Equal(t, "5", Render(5))
	assert.Equal(t, `{"k":"v"}`, Render(map[string]string{"k": "v"}))
}
