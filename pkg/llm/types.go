package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Default generation parameters for requests that do not set them.
// An explicit zero temperature is kept.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	MaxTemperature     = 2.0
)

// Message is one entry of a conversation
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	ToolRequests []ToolRequest `json:"tool_calls,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	Name         string        `json:"name,omitempty"`
}

// ToolRequest is a model-issued instruction to invoke a tool
type ToolRequest struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolSpec declares a tool to a model
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Request is a normalized generation request
type Request struct {
	Model       string     `json:"model,omitempty"`
	Messages    []Message  `json:"messages"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens"`
	Tools       []ToolSpec `json:"tools,omitempty"`
}

// Usage tracks token consumption for one generation
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	// Estimated is set when the provider did not report exact counts.
	Estimated bool `json:"estimated,omitempty"`
}

// Response is a normalized generation response
type Response struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	Usage            Usage         `json:"usage"`
	FinishReason     string        `json:"finish_reason"`
	Cached           bool          `json:"cached"`
	LatencyMs        float64       `json:"latency_ms"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	ToolRequests     []ToolRequest `json:"tool_calls,omitempty"`
}

// Clone returns a deep copy so callers can never mutate a shared response
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	if len(r.ToolRequests) > 0 {
		out.ToolRequests = make([]ToolRequest, len(r.ToolRequests))
		for i, tr := range r.ToolRequests {
			out.ToolRequests[i] = tr.clone()
		}
	}
	return &out
}

func (t ToolRequest) clone() ToolRequest {
	args := make(map[string]interface{}, len(t.Arguments))
	for k, v := range t.Arguments {
		args[k] = v
	}
	t.Arguments = args
	return t
}

// NewUsage builds a Usage with the total filled in
func NewUsage(input, output int) Usage {
	return Usage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
	}
}

// EstimateTokens approximates a token count as one token per four characters.
// It is an estimate for providers that do not report usage, never an exact count.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateMessageTokens sums EstimateTokens over message contents
func EstimateMessageTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return total / 4
}

// NewRequest builds a request carrying the default generation parameters
func NewRequest(model string, messages ...Message) Request {
	return Request{
		Model:       model,
		Messages:    messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// UnmarshalJSON defaults temperature and max_tokens only when they are absent
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	decoded := plain(NewRequest(""))
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Request(decoded)
	return nil
}

// Validate checks request parameters
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}
	if r.Temperature < 0 || r.Temperature > MaxTemperature {
		return fmt.Errorf("temperature must be between 0 and %.0f, got %g", MaxTemperature, r.Temperature)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", r.MaxTokens)
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
	}
	return nil
}

// SplitSystem separates leading and interleaved system messages from the conversation.
// Providers that take the system prompt as a separate field use it.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// FlattenToolMessages rewrites tool traffic into plain text turns for providers
// that are driven through the text tool-call protocol.
func FlattenToolMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleTool:
			label := msg.Name
			if label == "" {
				label = msg.ToolCallID
			}
			out = append(out, Message{
				Role:    RoleUser,
				Content: fmt.Sprintf("Tool result for %s (%s): %s", label, msg.ToolCallID, msg.Content),
			})
		case RoleAssistant:
			out = append(out, Message{Role: RoleAssistant, Content: msg.Content})
		default:
			out = append(out, msg)
		}
	}
	return out
}

// MarshalArguments encodes tool arguments, using {} for nil
func MarshalArguments(args map[string]interface{}) (string, error) {
	if args == nil {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool arguments: %w", err)
	}
	return string(data), nil
}

// ParseArguments decodes a JSON object of tool arguments; empty input yields an empty map
func ParseArguments(raw string) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	return params, nil
}
