package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
)

// File is the root of an agent configuration file.
type File struct {
	Agent   Agent   `yaml:"agent"`
	Model   Model   `yaml:"model"`
	Tools   Tools   `yaml:"tools"`
	Logging Logging `yaml:"logging"`
	Engine  Engine  `yaml:"engine"`
}

// Agent configures identity and run limits.
type Agent struct {
	ID string `yaml:"id"`
	// MaxIterations defaults to agent.DefaultMaxIterations when omitted.
	// Zero disables the limit.
	MaxIterations *int   `yaml:"max_iterations"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// Model selects the language model.
type Model struct {
	Provider      string   `yaml:"provider"`
	ID            string   `yaml:"id"`
	Temperature   *float64 `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	ContextLength int      `yaml:"context_length"`
	Capabilities  []string `yaml:"capabilities"`
}

// Tools configures tool execution.
type Tools struct {
	MaxParallel int `yaml:"max_parallel"`
}

// Logging configures the structured logger.
type Logging struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Engine configures run concurrency.
type Engine struct {
	MaxConcurrentRuns *int `yaml:"max_concurrent_runs"`
	EventBufferSize   *int `yaml:"event_buffer_size"`
}

// Load reads, expands and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return f, nil
}

// Parse expands environment variables in data, decodes it and validates the
// result. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(ExpandEnv(string(data)))))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// LoadEnvFiles loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// skipped. Without arguments .env.local and .env are tried.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	envSimple      = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// ExpandEnv replaces ${VAR:-default}, ${VAR} and $VAR with values from the
// process environment. Unset variables without default expand to "".
func ExpandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	s = envBraced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envBraced.FindStringSubmatch(match)[1])
	})

	return envSimple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envSimple.FindStringSubmatch(match)[1])
	})
}

// Validate checks every field and reports all problems at once. Each error
// names the offending field.
func (f *File) Validate() error {
	var errs []error

	if f.Agent.MaxIterations != nil && *f.Agent.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations: must not be negative, got %d", *f.Agent.MaxIterations))
	}

	switch model.Provider(f.Model.Provider) {
	case "", model.ProviderOpenAI, model.ProviderAnthropic, model.ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unsupported provider %q", f.Model.Provider))
	}

	if f.Model.Provider != "" && f.Model.ID == "" {
		errs = append(errs, errors.New("model.id: required when model.provider is set"))
	}

	if t := f.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("model.temperature: must be within [0, 2], got %g", *t))
	}

	if f.Model.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens: must not be negative, got %d", f.Model.MaxTokens))
	}

	if f.Tools.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("tools.max_parallel: must not be negative, got %d", f.Tools.MaxParallel))
	}

	if f.Logging.Level != "" {
		if _, err := logging.ParseLevel(f.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}

	switch f.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be json or text, got %q", f.Logging.Format))
	}

	if n := f.Engine.MaxConcurrentRuns; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("engine.max_concurrent_runs: must not be negative, got %d", *n))
	}

	if n := f.Engine.EventBufferSize; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("engine.event_buffer_size: must not be negative, got %d", *n))
	}

	return errors.Join(errs...)
}

// AgentConfig converts the file to the run configuration of an agent.
func (f *File) AgentConfig() agent.Config {
	cfg := agent.DefaultConfig()

	if f.Agent.MaxIterations != nil {
		cfg.MaxIterations = *f.Agent.MaxIterations
	}

	cfg.Prompt = core.NewPrompt(f.Agent.ID, func(b *core.PromptBuilder) {
		if f.Agent.SystemPrompt != "" {
			b.System(f.Agent.SystemPrompt)
		}
	}).WithParams(core.Params{
		Temperature: f.Model.Temperature,
		MaxTokens:   f.Model.MaxTokens,
	})

	cfg.Model = f.LLModel()

	return cfg
}

// LLModel returns the configured model.
func (f *File) LLModel() model.LLModel {
	m := model.LLModel{
		Provider:      model.Provider(f.Model.Provider),
		ID:            f.Model.ID,
		ContextLength: f.Model.ContextLength,
	}

	for _, c := range f.Model.Capabilities {
		m.Capabilities = append(m.Capabilities, model.Capability(c))
	}

	return m
}

// LoggerConfig converts the logging section. Unset values keep the
// defaults of logging.DefaultLoggerConfig.
func (f *File) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()

	if lvl, err := logging.ParseLevel(f.Logging.Level); err == nil {
		cfg.Level = lvl
	}

	if f.Logging.Format != "" {
		cfg.Format = f.Logging.Format
	}

	cfg.AddSource = f.Logging.AddSource
	cfg.Component = "agentgraph"

	if f.Agent.ID != "" {
		cfg.Attrs["agent_id"] = f.Agent.ID
	}

	return cfg
}

// EnvironmentConfig converts the tools section.
func (f *File) EnvironmentConfig() agent.EnvironmentOptions {
	opts := agent.DefaultEnvironmentOptions
	opts.MaxParallel = f.Tools.MaxParallel

	return opts
}

// EngineConfig converts the engine section. Unset values keep the
// defaults of engine.DefaultConfig.
func (f *File) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig

	if n := f.Engine.MaxConcurrentRuns; n != nil {
		cfg.MaxConcurrentRuns = *n
	}

	if n := f.Engine.EventBufferSize; n != nil {
		cfg.EventBufferSize = *n
	}

	return cfg
}
