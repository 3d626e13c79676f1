// Package memory lets strategies remember facts across runs. The feature
// publishes a *Memory instance backed by a Provider; NodeLoadFromMemory and
// NodeSaveToMemory read and write it from inside a strategy.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/llm"
)

// Key identifies the memory feature.
const Key feature.Key = "memory"

// DefaultSubject is the subject facts are filed under unless configured.
const DefaultSubject = "user"

// Config configures the memory feature.
type Config struct {
	// Provider stores the facts. Defaults to a new InMemoryProvider.
	Provider Provider
	// Subject facts of this agent are filed under.
	Subject string
	// Now stamps saved facts.
	Now func() time.Time
}

// Memory is the instance the feature publishes.
type Memory struct {
	provider Provider
	subject  string
	now      func() time.Time
}

// Provider returns the backing provider.
func (m *Memory) Provider() Provider { return m.provider }

// Subject returns the subject facts are filed under.
func (m *Memory) Subject() string { return m.subject }

// Remember saves a fact about concept.
func (m *Memory) Remember(ctx context.Context, concept, value string) error {
	return m.provider.Save(ctx, Fact{
		Subject:   m.subject,
		Concept:   concept,
		Value:     value,
		Timestamp: m.now(),
	})
}

// Recall loads the facts about concepts, or all facts when none are given.
func (m *Memory) Recall(ctx context.Context, concepts ...string) ([]Fact, error) {
	return m.provider.Load(ctx, m.subject, concepts...)
}

type memoryFeature struct{}

// New returns the memory feature.
func New() feature.Feature[Config] { return memoryFeature{} }

// Use returns an installer of the memory feature.
func Use(configure ...func(c *Config)) feature.Installer {
	return feature.Use(New(), configure...)
}

func (memoryFeature) Key() feature.Key { return Key }

func (memoryFeature) DefaultConfig() Config {
	return Config{Subject: DefaultSubject, Now: time.Now}
}

func (memoryFeature) Install(cfg Config, p *feature.Pipeline) error {
	if cfg.Provider == nil {
		cfg.Provider = NewInMemoryProvider()
	}

	if cfg.Subject == "" {
		return fmt.Errorf("memory: subject is required")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p.Provide(Key, &Memory{provider: cfg.Provider, subject: cfg.Subject, now: cfg.Now})

	return nil
}

// FactsHeader introduces remembered facts in the prompt.
const FactsHeader = "Here are the relevant facts from memory:"

// NodeLoadFromMemory appends the remembered facts about concepts, or all
// facts when none are given, to the prompt as a system message. Nothing is
// appended when memory holds no matching fact. The input passes through.
func NodeLoadFromMemory[T any](b *agent.StrategyBuilder, name string, concepts ...string) *agent.Node[T, T] {
	return agent.AddNode(b, name, func(ctx context.Context, ac *agent.Context, in T) (T, error) {
		m, err := agent.FeatureOf[*Memory](ac, Key)
		if err != nil {
			return in, err
		}

		facts, err := m.Recall(ctx, concepts...)
		if err != nil {
			return in, fmt.Errorf("failed to load facts: %w", err)
		}

		if len(facts) == 0 {
			return in, nil
		}

		var sb strings.Builder
		sb.WriteString(FactsHeader)
		for _, f := range facts {
			fmt.Fprintf(&sb, "\n- %s: %s", f.Concept, f.Value)
		}

		return in, ac.Write(ctx, func(s *llm.WriteSession) error {
			s.UpdatePrompt(func(pb *core.PromptBuilder) { pb.System(sb.String()) })
			return nil
		})
	})
}

// ExtractFactInstruction asks the model for a fact; %s is the concept.
const ExtractFactInstruction = "Based on the conversation so far, state what you learned about %s in one short sentence. " +
	"Answer with the fact only. If nothing was learned, answer with an empty message."

// NodeSaveToMemory asks the model what the conversation revealed about
// concept and saves the answer. The extraction turn is not kept in the
// prompt. The input passes through.
func NodeSaveToMemory[T any](b *agent.StrategyBuilder, name, concept string) *agent.Node[T, T] {
	return agent.AddNode(b, name, func(ctx context.Context, ac *agent.Context, in T) (T, error) {
		m, err := agent.FeatureOf[*Memory](ac, Key)
		if err != nil {
			return in, err
		}

		var value string
		err = ac.Write(ctx, func(s *llm.WriteSession) error {
			original := s.Prompt()
			s.UpdatePrompt(func(pb *core.PromptBuilder) { pb.User(fmt.Sprintf(ExtractFactInstruction, concept)) })

			answer, err := s.RequestLLMWithoutTools(ctx)
			if err != nil {
				return err
			}

			value = strings.TrimSpace(answer.Content())
			s.SetPrompt(original)

			return nil
		})
		if err != nil {
			return in, err
		}

		if value == "" {
			return in, nil
		}

		if err := m.Remember(ctx, concept, value); err != nil {
			return in, fmt.Errorf("failed to save fact %s: %w", concept, err)
		}

		ac.Logger.Debug("memory.fact.saved", "concept", concept, "subject", m.Subject())

		return in, nil
	})
}
