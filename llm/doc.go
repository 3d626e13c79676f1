// Package llm implements the session layer guarding the conversation state
// of a run.
//
// A Context holds the prompt, the tool descriptors in scope and the selected
// model. Nodes and feature handlers access it through scoped sessions:
//
//	err := llmCtx.Write(ctx, func(s *llm.WriteSession) error {
//		s.UpdatePrompt(func(b *core.PromptBuilder) { b.User(input) })
//		_, err := s.RequestLLM(ctx)
//		return err
//	})
//
// Writers are serialized and work on a draft that is committed only when the
// callback succeeds. Readers always see the last committed state.
package llm
