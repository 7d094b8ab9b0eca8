// Package agent runs conversational turns that alternate model calls and tool rounds.
//
// Invariants:
// - A turn's history and step trace only grow; the trace never drives control flow.
// - Tool messages are appended in request order, one per tool request, correlated by call id.
// - A turn runs at most MaxRounds tool rounds; past that it finalizes with Truncated set.
// - An explicit model is never replaced by keyword inference.
// - Once an event sink fails or closes, no further events reach it and the turn still completes.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Generator: gateway,
//		Tools:     toolClient,
//		Logger:    logger,
//	})
//	result, err := runner.Run(ctx, agent.TurnRequest{Input: "2+2 please"}, nil)
//	_ = result.FinalAnswer
package agent
