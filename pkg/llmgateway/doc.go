// Package llmgateway routes normalized generation requests to model adapters.
//
// Invariants:
// - Only successful adapter responses are cached; errors are recorded and never stored.
// - A cache entry looked up at or after its expiry is a miss.
// - Concurrent misses for one cache key share a single adapter call; callers that did not
//   make the call see Cached=true.
// - Callers always receive copies; a cached response is never mutated.
//
// Usage:
//
//	gw, _ := llmgateway.New(llmgateway.DefaultConfig(), logger, openaiAdapter, bedrockAdapter)
//	resp, err := gw.Generate(ctx, llm.NewRequest("gpt-4o", msgs...))
//	if errors.Is(err, llmgateway.ErrUnknownModel) {
//		// client error
//	}
package llmgateway
