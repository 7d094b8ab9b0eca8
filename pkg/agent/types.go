package agent

import (
	"time"
)

// Step nodes
const (
	NodeProcessInput  = "process_input"
	NodeLLM           = "llm"
	NodeToolExecution = "tool_execution"
	NodeFinalAnswer   = "final_answer"
)

// Defaults
const (
	DefaultMaxRounds        = 8
	DefaultTurnTimeout      = 120 * time.Second
	DefaultMaxParallelTools = 4
	DefaultRetryInterval    = 500 * time.Millisecond
)

// TurnRequest is one user input to run through the loop
type TurnRequest struct {
	Input string `json:"input"`
	// Model pins the model for the whole turn; empty lets the loop infer one from the input
	Model string `json:"model,omitempty"`
}

// TurnResult is the outcome of a completed turn
type TurnResult struct {
	TurnID      string       `json:"turn_id"`
	FinalAnswer string       `json:"result"`
	Steps       []StepRecord `json:"steps"`
	Truncated   bool         `json:"truncated"`
	Rounds      int          `json:"rounds"`
}

// ToolExecution records one invocation inside a tool_execution step
type ToolExecution struct {
	Name   string                 `json:"name"`
	CallID string                 `json:"call_id"`
	Args   map[string]interface{} `json:"args"`
	Result string                 `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// StepRecord is one entry of the step trace. It is observability only.
type StepRecord struct {
	Node          string          `json:"node"`
	Timestamp     time.Time       `json:"timestamp"`
	Input         string          `json:"input,omitempty"`
	ModelSelected string          `json:"model_selected,omitempty"`
	Model         string          `json:"model,omitempty"`
	Cached        bool            `json:"cached,omitempty"`
	LatencyMs     float64         `json:"latency_ms,omitempty"`
	HasToolCalls  bool            `json:"has_tool_calls,omitempty"`
	Attempts      int             `json:"attempts,omitempty"`
	Tools         []ToolExecution `json:"tools,omitempty"`
	Truncated     bool            `json:"truncated,omitempty"`
}
