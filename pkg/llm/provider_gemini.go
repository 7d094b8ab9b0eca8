package llm

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini adapter
type GeminiConfig struct {
	APIKey string
	Model  string
}

// ContentGenerator is the subset of the genai models service the adapter uses
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdapter implements Adapter for Google Gemini.
// Tools are driven through the text protocol, so NativeTools is false.
type GeminiAdapter struct {
	models  ContentGenerator
	model   string
	pricing Pricing
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(ctx context.Context, cfg GeminiConfig) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingCredentials)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return NewGeminiAdapterWithClient(client.Models, cfg), nil
}

// NewGeminiAdapterWithClient creates a Gemini adapter around an existing models service
func NewGeminiAdapterWithClient(models ContentGenerator, cfg GeminiConfig) *GeminiAdapter {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	return &GeminiAdapter{
		models:  models,
		model:   cfg.Model,
		pricing: Pricing{InputPer1K: 0.00025, OutputPer1K: 0.0005},
	}
}

// Name returns the model id
func (a *GeminiAdapter) Name() string {
	return "gemini-pro"
}

// Provider returns the provider name
func (a *GeminiAdapter) Provider() string {
	return "google"
}

// Description returns a summary of the adapter
func (a *GeminiAdapter) Description() string {
	return fmt.Sprintf("Google Gemini (using %s)", a.model)
}

// NativeTools reports structured tool support
func (a *GeminiAdapter) NativeTools() bool {
	return false
}

// EstimateCost prices a call
func (a *GeminiAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return a.pricing.Cost(inputTokens, outputTokens)
}

// Generate makes an API call to Gemini.
// Token counts are estimated when the API omits usage metadata.
func (a *GeminiAdapter) Generate(ctx context.Context, request Request) (*Response, error) {
	system, contents := geminiContents(request.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: conversation has no user or assistant messages")
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(request.Temperature)),
		MaxOutputTokens: int32(min(request.MaxTokens, math.MaxInt32)),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	content := resp.Text()
	finishReason := "stop"
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		finishReason = string(resp.Candidates[0].FinishReason)
	}

	var usage Usage
	if md := resp.UsageMetadata; md != nil && (md.PromptTokenCount > 0 || md.CandidatesTokenCount > 0) {
		usage = NewUsage(int(md.PromptTokenCount), int(md.CandidatesTokenCount))
	} else {
		usage = NewUsage(EstimateMessageTokens(request.Messages), EstimateTokens(content))
		usage.Estimated = true
	}

	return &Response{
		Content:      content,
		Model:        a.model,
		Usage:        usage,
		FinishReason: finishReason,
	}, nil
}

// geminiContents flattens tool traffic and maps roles onto user/model
func geminiContents(messages []Message) (string, []*genai.Content) {
	system, rest := SplitSystem(FlattenToolMessages(messages))

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return system, contents
}
