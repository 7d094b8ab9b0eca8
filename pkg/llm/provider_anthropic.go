package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic adapter
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnthropicAdapter implements Adapter for Anthropic Claude
type AnthropicAdapter struct {
	client  anthropic.Client
	model   string
	pricing Pricing
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingCredentials)
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:  anthropic.NewClient(opts...),
		model:   cfg.Model,
		pricing: Pricing{InputPer1K: 0.003, OutputPer1K: 0.015},
	}, nil
}

// Name returns the model id
func (a *AnthropicAdapter) Name() string {
	return "claude-sonnet"
}

// Provider returns the provider name
func (a *AnthropicAdapter) Provider() string {
	return "anthropic"
}

// Description returns a summary of the adapter
func (a *AnthropicAdapter) Description() string {
	return fmt.Sprintf("Anthropic Claude messages API (using %s)", a.model)
}

// NativeTools reports structured tool support
func (a *AnthropicAdapter) NativeTools() bool {
	return true
}

// EstimateCost prices a call
func (a *AnthropicAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return a.pricing.Cost(inputTokens, outputTokens)
}

// Generate makes an API call to Anthropic Claude
func (a *AnthropicAdapter) Generate(ctx context.Context, request Request) (*Response, error) {
	system, messages := anthropicMessages(request)

	reqParams := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		Messages:    messages,
		MaxTokens:   int64(request.MaxTokens),
		Temperature: anthropic.Float(request.Temperature),
	}
	if system != "" {
		reqParams.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(request.Tools) > 0 {
		reqParams.Tools = AnthropicTools(request.Tools)
	}

	response, err := a.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	content := ""
	toolRequests := []ToolRequest{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var params map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &params); err != nil {
				return nil, fmt.Errorf("anthropic: failed to parse tool input: %w", err)
			}
			toolRequests = append(toolRequests, ToolRequest{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: params,
			})
		}
	}

	return &Response{
		Content:      content,
		Model:        string(response.Model),
		Usage:        NewUsage(int(response.Usage.InputTokens), int(response.Usage.OutputTokens)),
		FinishReason: string(response.StopReason),
		ToolRequests: toolRequests,
	}, nil
}

// anthropicMessages extracts the system prompt and converts the rest.
// Consecutive tool results are grouped into one user message.
func anthropicMessages(request Request) (string, []anthropic.MessageParam) {
	source := request.Messages
	if len(request.Tools) == 0 {
		source = FlattenToolMessages(source)
	}
	system, rest := SplitSystem(source)

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for i := 0; i < len(rest); i++ {
		msg := rest[i]
		switch msg.Role {
		case RoleTool:
			blocks := []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			}
			for i+1 < len(rest) && rest[i+1].Role == RoleTool {
				i++
				blocks = append(blocks, anthropic.NewToolResultBlock(rest[i].ToolCallID, rest[i].Content, false))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tr := range msg.ToolRequests {
				blocks = append(blocks, anthropic.NewToolUseBlock(tr.ID, tr.Arguments, tr.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, messages
}
