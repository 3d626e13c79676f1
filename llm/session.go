package llm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// view implements the observation methods shared by both session kinds.
type view struct {
	st     state
	closed atomic.Bool
}

func (v *view) check() {
	if v.closed.Load() {
		panic(core.ErrSessionClosed)
	}
}

func (v *view) close() { v.closed.Store(true) }

// Prompt returns the prompt visible to the session.
func (v *view) Prompt() core.Prompt {
	v.check()
	return v.st.prompt
}

// Tools returns the tool descriptors in scope.
func (v *view) Tools() []tool.Descriptor {
	v.check()
	return slices.Clone(v.st.tools)
}

// Model returns the selected model.
func (v *view) Model() model.LLModel {
	v.check()
	return v.st.model
}

// LastMessage returns the most recent prompt message.
func (v *view) LastMessage() (core.Message, bool) {
	v.check()
	return v.st.prompt.Last()
}

// HistoryLength returns the number of prompt messages.
func (v *view) HistoryLength() int {
	v.check()
	return v.st.prompt.Len()
}

// Tool returns the descriptor of the named tool in scope.
func (v *view) Tool(name string) (tool.Descriptor, bool) {
	v.check()
	for _, d := range v.st.tools {
		if d.Name == name {
			return d, true
		}
	}
	return tool.Descriptor{}, false
}

// ReadSession is a read only handle into a Context. It exposes no mutators.
type ReadSession struct {
	view
}

// WriteSession is the only handle allowed to change the prompt, the tools
// or the model of a Context. Changes apply to a draft committed by
// Context.Write. Any use after the Write callback returned panics with
// core.ErrSessionClosed.
type WriteSession struct {
	view
	owner *Context
}

// SetPrompt replaces the prompt.
func (s *WriteSession) SetPrompt(p core.Prompt) {
	s.check()
	s.st.prompt = p
}

// UpdatePrompt appends the messages produced by build.
func (s *WriteSession) UpdatePrompt(build func(b *core.PromptBuilder)) {
	s.check()
	s.st.prompt = s.st.prompt.Update(build)
}

// AppendMessages appends msgs to the prompt.
func (s *WriteSession) AppendMessages(msgs ...core.Message) {
	s.check()
	s.st.prompt = s.st.prompt.Append(msgs...)
}

// RewritePrompt replaces the prompt with fn(prompt).
func (s *WriteSession) RewritePrompt(fn func(core.Prompt) core.Prompt) {
	s.check()
	s.st.prompt = fn(s.st.prompt)
}

// SetTools replaces the tools in scope.
func (s *WriteSession) SetTools(tools []tool.Descriptor) {
	s.check()
	s.st.tools = slices.Clone(tools)
}

// SetModel selects a different model.
func (s *WriteSession) SetModel(m model.LLModel) {
	s.check()
	s.st.model = m
}

// SetToolChoice changes the tool choice of the prompt.
func (s *WriteSession) SetToolChoice(choice core.ToolChoice) {
	s.check()
	s.st.prompt = s.st.prompt.WithToolChoice(choice)
}

// RequestLLM sends the prompt with the tools in scope. It returns the first
// tool call if the model issued any, otherwise the first response. The text
// responses and the returned call are appended. Further calls of the same
// turn are dropped, so the model issues them again after the result.
func (s *WriteSession) RequestLLM(ctx context.Context) (core.Message, error) {
	return s.requestOne(ctx, s.st.prompt, s.st.tools)
}

// RequestLLMMultiple is like RequestLLM but appends and returns every
// response message.
func (s *WriteSession) RequestLLMMultiple(ctx context.Context) ([]core.Message, error) {
	msgs, err := s.request(ctx, s.st.prompt, s.st.tools)
	if err != nil {
		return nil, err
	}
	s.st.prompt = s.st.prompt.Append(msgs...)
	return msgs, nil
}

// RequestLLMWithoutTools sends the prompt without exposing any tool.
func (s *WriteSession) RequestLLMWithoutTools(ctx context.Context) (core.Message, error) {
	return s.requestOne(ctx, s.st.prompt, nil)
}

// RequestLLMOnlyCallingTools forces the model to answer with a tool call for
// this request only.
func (s *WriteSession) RequestLLMOnlyCallingTools(ctx context.Context) (core.Message, error) {
	return s.requestOne(ctx, s.st.prompt.WithToolChoice(core.ToolChoiceRequired()), s.st.tools)
}

// RequestLLMForceOneTool forces a call of the named tool for this request only.
func (s *WriteSession) RequestLLMForceOneTool(ctx context.Context, name string) (core.Message, error) {
	if _, ok := s.Tool(name); !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotFound, name)
	}
	return s.requestOne(ctx, s.st.prompt.WithToolChoice(core.ToolChoiceNamed(name)), s.st.tools)
}

// RequestLLMStreaming streams the answer, calling onChunk for every text
// chunk, and appends the assembled assistant message. Tools are not offered.
func (s *WriteSession) RequestLLMStreaming(ctx context.Context, onChunk func(chunk string)) (core.AssistantMessage, error) {
	s.check()
	call := s.callInfo(s.st.prompt, nil)
	s.owner.observer.BeforeLLMCall(ctx, call)

	chunks, errs := s.owner.executor.ExecuteStreaming(ctx, s.st.prompt, s.st.model)
	var sb strings.Builder
	for c := range chunks {
		sb.WriteString(c)
		if onChunk != nil {
			onChunk(c)
		}
	}
	if err := <-errs; err != nil {
		s.owner.observer.AfterLLMCall(ctx, call, nil, err)
		return core.AssistantMessage{}, err
	}

	msg := core.AssistantMessage{Text: sb.String(), FinishReason: "stop"}
	s.owner.observer.AfterLLMCall(ctx, call, []core.Message{msg}, nil)
	s.st.prompt = s.st.prompt.Append(msg)
	return msg, nil
}

func (s *WriteSession) request(ctx context.Context, p core.Prompt, tools []tool.Descriptor) ([]core.Message, error) {
	s.check()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call := s.callInfo(p, tools)
	s.owner.observer.BeforeLLMCall(ctx, call)
	s.owner.logger.Debug("llm.request",
		"run_id", s.owner.info.RunID,
		"model", s.st.model.String(),
		"messages", p.Len(),
		"tools", len(tools),
	)

	msgs, err := s.owner.executor.Execute(ctx, p, s.st.model, tools)
	s.owner.observer.AfterLLMCall(ctx, call, msgs, err)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("llm request: empty response")
	}

	return msgs, nil
}

// requestOne appends the text responses and the primary message.
func (s *WriteSession) requestOne(ctx context.Context, p core.Prompt, tools []tool.Descriptor) (core.Message, error) {
	msgs, err := s.request(ctx, p, tools)
	if err != nil {
		return nil, err
	}

	idx := primary(msgs)
	kept := make([]core.Message, 0, len(msgs))
	for i, m := range msgs {
		if _, isCall := m.(core.ToolCallMessage); isCall && i != idx {
			continue
		}
		kept = append(kept, m)
	}

	s.st.prompt = s.st.prompt.Append(kept...)
	return msgs[idx], nil
}

func (s *WriteSession) callInfo(p core.Prompt, tools []tool.Descriptor) CallInfo {
	return CallInfo{Run: s.owner.info, Prompt: p, Model: s.st.model, Tools: slices.Clone(tools)}
}

// primary returns the index of the first tool call, or 0.
func primary(msgs []core.Message) int {
	for i, m := range msgs {
		if _, ok := m.(core.ToolCallMessage); ok {
			return i
		}
	}
	return 0
}
