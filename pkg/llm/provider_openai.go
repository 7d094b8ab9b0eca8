package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI adapter
type OpenAIConfig struct {
	APIKey  string
	Model   string
	OrgID   string
	BaseURL string
}

// OpenAIAdapter implements Adapter for OpenAI chat completions
type OpenAIAdapter struct {
	client  openai.Client
	model   string
	pricing Pricing
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingCredentials)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.OrgID != "" {
		opts = append(opts, option.WithOrganization(cfg.OrgID))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIAdapter{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		pricing: Pricing{InputPer1K: 0.005, OutputPer1K: 0.015},
	}, nil
}

// Name returns the model id
func (a *OpenAIAdapter) Name() string {
	return "gpt-4o"
}

// Provider returns the provider name
func (a *OpenAIAdapter) Provider() string {
	return "openai"
}

// Description returns a summary of the adapter
func (a *OpenAIAdapter) Description() string {
	return fmt.Sprintf("OpenAI chat completions (using %s)", a.model)
}

// NativeTools reports structured tool support
func (a *OpenAIAdapter) NativeTools() bool {
	return true
}

// EstimateCost prices a call
func (a *OpenAIAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return a.pricing.Cost(inputTokens, outputTokens)
}

// Generate makes an API call to OpenAI
func (a *OpenAIAdapter) Generate(ctx context.Context, request Request) (*Response, error) {
	messages, err := openAIMessages(request)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    messages,
		Temperature: openai.Float(request.Temperature),
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if len(request.Tools) > 0 {
		params.Tools = OpenAITools(request.Tools)
	}

	response, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	choice := response.Choices[0]

	toolRequests := []ToolRequest{}
	for _, tc := range choice.Message.ToolCalls {
		args, err := ParseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		toolRequests = append(toolRequests, ToolRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	model := response.Model
	if model == "" {
		model = a.model
	}

	return &Response{
		Content:      choice.Message.Content,
		Model:        model,
		Usage:        NewUsage(int(response.Usage.PromptTokens), int(response.Usage.CompletionTokens)),
		FinishReason: choice.FinishReason,
		ToolRequests: toolRequests,
	}, nil
}

// openAIMessages converts normalized messages to OpenAI format
func openAIMessages(request Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	source := request.Messages
	if len(request.Tools) == 0 {
		source = FlattenToolMessages(source)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(source))
	for _, msg := range source {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolRequests) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}

			// Assistant message with tool calls
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolRequests))
			for _, tr := range msg.ToolRequests {
				args, err := MarshalArguments(tr.Arguments)
				if err != nil {
					return nil, err
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tr.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tr.Name,
						Arguments: args,
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistantMsg.ToParam())
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return messages, nil
}
