// Package tokenizer counts the tokens a run sends to and receives from the
// language model.
//
// The feature observes every LLM call and accumulates per run usage:
//
//	agentgraph.New(strategy, executor, func(o *agentgraph.Options) {
//		o.Features = append(o.Features, tokenizer.Use())
//	})
//	...
//	inst, _ := a.Feature(tokenizer.Key)
//	usage := inst.(*tokenizer.Counter).Usage(res.RunID)
//
// The default Whitespace tokenizer is an approximation; configure a
// Tiktoken tokenizer for exact counts of OpenAI models.
package tokenizer

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/feature"
)

// Key identifies the tokenizer feature.
const Key feature.Key = "tokenizer"

// Config configures the tokenizer feature.
type Config struct {
	Tokenizer Tokenizer
}

// Usage is the token usage of one or more LLM calls.
type Usage struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

func (u Usage) add(o Usage) Usage {
	return Usage{
		Calls:            u.Calls + o.Calls,
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

type tokenizerFeature struct{}

// New returns the tokenizer feature.
func New() feature.Feature[Config] { return tokenizerFeature{} }

// Use returns an installer of the tokenizer feature.
func Use(configure ...func(c *Config)) feature.Installer {
	return feature.Use(New(), configure...)
}

func (tokenizerFeature) Key() feature.Key { return Key }

func (tokenizerFeature) DefaultConfig() Config { return Config{Tokenizer: Whitespace{}} }

func (tokenizerFeature) Install(cfg Config, p *feature.Pipeline) error {
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = Whitespace{}
	}

	c := &Counter{tokenizer: cfg.Tokenizer, runs: make(map[string]Usage)}

	p.Provide(Key, c)
	p.InterceptAfterLLMCall(Key, c.onAfterLLMCall)

	return nil
}

// Counter accumulates token usage per run. Usage is retained until Forget
// is called for the run.
type Counter struct {
	tokenizer Tokenizer

	mu    sync.RWMutex
	runs  map[string]Usage
	total Usage
}

// Tokenizer returns the tokenizer used for counting.
func (c *Counter) Tokenizer() Tokenizer { return c.tokenizer }

// CountPrompt counts the tokens of p including the chat format overhead.
func (c *Counter) CountPrompt(p core.Prompt) int {
	return CountMessages(c.tokenizer, p.Messages())
}

// Usage returns the usage of the run.
func (c *Counter) Usage(runID string) Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs[runID]
}

// Total returns the usage of all runs observed so far.
func (c *Counter) Total() Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// Forget drops the usage of the run. Totals are kept.
func (c *Counter) Forget(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runID)
}

func (c *Counter) onAfterLLMCall(_ context.Context, e feature.AfterLLMCallEvent) error {
	u := Usage{
		Calls:            1,
		PromptTokens:     c.CountPrompt(e.Prompt),
		CompletionTokens: CountText(c.tokenizer, e.Responses),
	}

	c.mu.Lock()
	c.runs[e.Run.RunID] = c.runs[e.Run.RunID].add(u)
	c.total = c.total.add(u)
	c.mu.Unlock()

	return nil
}
