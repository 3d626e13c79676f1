package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello {{.name | upper}}, {{default \"guest\" .role}}!", map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello ADA, guest!", out)

	out, err = RenderTemplate("no markers <b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers <b>", out)

	out, err = RenderTemplate("{{.x}} & <y>", map[string]any{"x": "a<b"})
	require.NoError(t, err)
	assert.Equal(t, "a<b & <y>", out, "prompt text is not HTML escaped")

	out, err = RenderTemplate("[{{.missing}}]", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	_, err = RenderTemplate("{{.x", nil)
	assert.Error(t, err)
}

func TestRenderTemplate_PromptFuncs(t *testing.T) {
	data := map[string]any{
		"steps":  []string{"read the issue", "write the fix"},
		"tags":   []any{"go", 1},
		"query":  `say "hi"`,
		"args":   map[string]any{"city": "Berlin"},
		"answer": "line one\nline two",
	}

	tests := []struct {
		tmpl string
		want string
	}{
		{`{{bullets .steps}}`, "- read the issue\n- write the fix"},
		{`{{numbered .steps}}`, "1. read the issue\n2. write the fix"},
		{`{{join ", " .tags}}`, "go, 1"},
		{`{{quote .query}}`, `"say \"hi\""`},
		{`{{toJSON .args}}`, `{"city":"Berlin"}`},
		{`{{indent 2 .answer}}`, "  line one\n  line two"},
		{`{{truncate 8 .answer}}`, "line ..."},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			out, err := RenderTemplate(tt.tmpl, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	tmpl := `
Task: {{.task}}
{{if .missing}}
Missing information:
{{bullets .missing}}
{{end}}


Answer concisely.
`

	out, err := RenderPrompt(tmpl, map[string]any{"task": "deploy"})
	require.NoError(t, err)
	assert.Equal(t, "Task: deploy\n\nAnswer concisely.", out)

	out, err = RenderPrompt(tmpl, map[string]any{"task": "deploy", "missing": []string{"region"}})
	require.NoError(t, err)
	assert.Equal(t, "Task: deploy\n\nMissing information:\n- region\n\nAnswer concisely.", out)

	_, err = RenderPrompt("{{bullets}}", nil)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate(10, "short"))
	assert.Equal(t, "héllo w...", Truncate(10, "héllo wörld!"))
	assert.Equal(t, "ab", Truncate(2, "abcdef"))
	assert.Equal(t, "unlimited", Truncate(0, "unlimited"))
}

func TestStrings(t *testing.T) {
	assert.Nil(t, Strings(nil))
	assert.Equal(t, []string{"a"}, Strings("a"))
	assert.Equal(t, []string{"1", "true"}, Strings([]any{1, true}))
	assert.Empty(t, Bullets(nil))
}
