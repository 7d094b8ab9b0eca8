// Package llm defines the normalized generation contract and the model adapters behind it.
//
// Invariants:
// - Adapters never retry; retry policy belongs to the caller.
// - Structured tool messages are sent only when the request declares tools; otherwise
//   tool traffic is flattened to plain text turns.
// - Token counts that a provider does not report are estimated and flagged with Usage.Estimated.
//
// Usage:
//
//	adapter, _ := llm.NewOpenAIAdapter(llm.OpenAIConfig{APIKey: key})
//	req := llm.NewRequest("", llm.Message{Role: llm.RoleUser, Content: "hi"})
//	resp, _ := adapter.Generate(ctx, req)
//	_ = resp.Content
package llm
