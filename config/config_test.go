package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
)

const sample = `
agent:
  id: support-bot
  max_iterations: 7
  system_prompt: You are ${PERSONA:-helpful}.
model:
  provider: openai
  id: ${TEST_MODEL_ID}
  temperature: 0.3
  max_tokens: 512
  capabilities: [tools, streaming]
tools:
  max_parallel: 4
logging:
  level: debug
  format: text
engine:
  max_concurrent_runs: 2
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_MODEL_ID", "gpt-4o-mini")

	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	cfg := f.AgentConfig()
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "support-bot", cfg.Prompt.ID())
	require.Equal(t, 1, cfg.Prompt.Len())
	assert.Equal(t, "You are helpful.", cfg.Prompt.Messages()[0].Content())
	require.NotNil(t, cfg.Prompt.Params().Temperature)
	assert.InDelta(t, 0.3, *cfg.Prompt.Params().Temperature, 1e-9)
	assert.Equal(t, 512, cfg.Prompt.Params().MaxTokens)

	assert.Equal(t, model.ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.ID)
	assert.True(t, cfg.Model.Supports(model.CapabilityStreaming))

	assert.Equal(t, 4, f.EnvironmentConfig().MaxParallel)

	lc := f.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "text", lc.Format)
	assert.Equal(t, "support-bot", lc.Attrs["agent_id"])

	ec := f.EngineConfig()
	assert.Equal(t, 2, ec.MaxConcurrentRuns)
	assert.Equal(t, engine.DefaultConfig.EventBufferSize, ec.EventBufferSize)
}

func TestParse_Defaults(t *testing.T) {
	f, err := Parse([]byte("agent:\n  id: minimal\n"))
	require.NoError(t, err)

	cfg := f.AgentConfig()
	assert.Equal(t, agent.DefaultMaxIterations, cfg.MaxIterations)
	assert.Zero(t, cfg.Prompt.Len())
	assert.Equal(t, logging.LogLevelInfo, f.LoggerConfig().Level)
	assert.Equal(t, engine.DefaultConfig, f.EngineConfig())
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultMaxIterations, f.AgentConfig().MaxIterations)
}

func TestParse_ValidationNamesFields(t *testing.T) {
	_, err := Parse([]byte(`
agent:
  max_iterations: -1
model:
  provider: acme
  temperature: 3
tools:
  max_parallel: -2
logging:
  level: loud
  format: xml
`))
	require.Error(t, err)

	for _, field := range []string{
		"agent.max_iterations",
		"model.provider",
		"model.id",
		"model.temperature",
		"tools.max_parallel",
		"logging.level",
		"logging.format",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("agent:\n  name: typo\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  id: from-file\n"), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", f.Agent.ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AG_SET", "value")
	t.Setenv("AG_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${AG_SET}", "value"},
		{"$AG_SET/x", "value/x"},
		{"${AG_EMPTY:-fallback}", "fallback"},
		{"${AG_SET:-fallback}", "value"},
		{"${AG_UNSET_VAR}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandEnv(tt.in))
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AG_FROM_DOTENV=loaded\n"), 0o600))
	t.Setenv("AG_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("AG_FROM_DOTENV"))

	require.NoError(t, LoadEnvFiles(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("AG_FROM_DOTENV"))
}
