package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
)

// RateLimitedExecutor throttles requests to an underlying executor. Callers
// block in Wait until a token is available or ctx is done.
type RateLimitedExecutor struct {
	next    PromptExecutor
	limiter *rate.Limiter
}

// NewRateLimitedExecutor allows r requests per second with the given burst.
func NewRateLimitedExecutor(next PromptExecutor, r rate.Limit, burst int) *RateLimitedExecutor {
	return &RateLimitedExecutor{next: next, limiter: rate.NewLimiter(r, burst)}
}

// Execute implements PromptExecutor.
func (e *RateLimitedExecutor) Execute(ctx context.Context, prompt core.Prompt, model LLModel, tools []tool.Descriptor) ([]core.Message, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return e.next.Execute(ctx, prompt, model, tools)
}

// ExecuteStreaming implements PromptExecutor.
func (e *RateLimitedExecutor) ExecuteStreaming(ctx context.Context, prompt core.Prompt, model LLModel) (<-chan string, <-chan error) {
	if err := e.limiter.Wait(ctx); err != nil {
		out := make(chan string)
		errCh := make(chan error, 1)
		errCh <- fmt.Errorf("rate limit: %w", err)
		close(out)
		close(errCh)
		return out, errCh
	}
	return e.next.ExecuteStreaming(ctx, prompt, model)
}
