package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/llm"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

type counter struct{ n int }

func TestContext_Features(t *testing.T) {
	ac, _ := newTestContext(t, model.NewMockExecutor(), nil)
	ac.Pipeline.Provide("counter", &counter{n: 3})

	v, ok := ac.Feature("counter")
	require.True(t, ok)
	assert.Equal(t, 3, v.(*counter).n)

	c, err := FeatureOf[*counter](ac, "counter")
	require.NoError(t, err)
	assert.Equal(t, 3, c.n)

	_, ok = ac.Feature("missing")
	assert.False(t, ok)
	_, err = ac.RequireFeature("missing")
	assert.ErrorIs(t, err, core.ErrFeatureNotInstalled)

	_, err = FeatureOf[string](ac, "counter")
	assert.ErrorIs(t, err, core.ErrFeatureNotInstalled)
}

func TestStorage(t *testing.T) {
	s := NewStorage()
	key := NewStorageKey[[]string]("visited")

	_, ok := Lookup(s, key)
	assert.False(t, ok)

	Put(s, key, []string{"a"})
	v, ok := Lookup(s, key)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v)
	assert.Equal(t, 1, s.Len())

	s.Remove(key.Name())
	assert.Equal(t, 0, s.Len())
}

func TestRunState(t *testing.T) {
	st := NewRunState(2)
	st.Set("k", 1)
	v, ok := st.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	values := st.Values()
	values["k"] = 2
	v, _ = st.Get("k")
	assert.Equal(t, 1, v, "Values returns a copy")

	st.Delete("k")
	_, ok = st.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 2, st.Iterations.Max())
}

func TestContext_ForkDoesNotMutateOriginal(t *testing.T) {
	reg := tool.MustRegistry(tool.Exit(), weatherTool())
	ac, _ := newTestContext(t, model.NewMockExecutor(), reg)

	forked := ac.Fork(func(c *Context) { c.Input = "other" })
	assert.Equal(t, "input", ac.Input)
	assert.Equal(t, "other", forked.Input)
	assert.Same(t, ac.LLM, forked.LLM)

	scoped := ac.WithTools([]tool.Descriptor{{Name: "weather"}})
	assert.Len(t, ac.LLM.Tools(), 2)
	assert.Len(t, scoped.LLM.Tools(), 1)

	require.NoError(t, scoped.Write(context.Background(), func(s *llm.WriteSession) error {
		s.UpdatePrompt(func(pb *core.PromptBuilder) { pb.User("scoped only") })
		return nil
	}))
	assert.Equal(t, 0, ac.LLM.Prompt().Len())
	assert.Equal(t, 1, scoped.LLM.Prompt().Len())
}
