package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

// BedrockConfig configures the Bedrock adapter
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ModelID         string
}

// ConverseAPI is the subset of the Bedrock runtime client the adapter uses
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter implements Adapter for AWS Bedrock through the Converse API
type BedrockAdapter struct {
	client  ConverseAPI
	modelID string
	region  string
	pricing Pricing
}

// NewBedrockAdapter loads AWS configuration and creates a Bedrock adapter.
// Without static keys the default credential chain is used.
func NewBedrockAdapter(ctx context.Context, cfg BedrockConfig) (*BedrockAdapter, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return NewBedrockAdapterWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

// NewBedrockAdapterWithClient creates a Bedrock adapter around an existing client
func NewBedrockAdapterWithClient(client ConverseAPI, cfg BedrockConfig) *BedrockAdapter {
	if cfg.ModelID == "" {
		cfg.ModelID = "us.amazon.nova-pro-v1:0"
	}
	return &BedrockAdapter{
		client:  client,
		modelID: cfg.ModelID,
		region:  cfg.Region,
		pricing: Pricing{InputPer1K: 0.0008, OutputPer1K: 0.0032},
	}
}

// Name returns the model id
func (a *BedrockAdapter) Name() string {
	return "bedrock-nova-pro"
}

// Provider returns the provider name
func (a *BedrockAdapter) Provider() string {
	return "aws"
}

// Description returns a summary of the adapter
func (a *BedrockAdapter) Description() string {
	return fmt.Sprintf("AWS Bedrock Converse (using %s)", a.modelID)
}

// NativeTools reports structured tool support
func (a *BedrockAdapter) NativeTools() bool {
	return true
}

// EstimateCost prices a call
func (a *BedrockAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return a.pricing.Cost(inputTokens, outputTokens)
}

// Generate makes a Converse call
func (a *BedrockAdapter) Generate(ctx context.Context, request Request) (*Response, error) {
	system, messages, err := bedrockMessages(request)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(a.modelID),
		Messages: messages,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(min(request.MaxTokens, math.MaxInt32))),
			Temperature: aws.Float32(float32(request.Temperature)),
		},
	}
	if system != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: system},
		}
	}
	if len(request.Tools) > 0 {
		input.ToolConfig = BedrockToolConfig(request.Tools)
	}

	output, err := a.client.Converse(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("bedrock: %s (%s fault): %w", apiErr.ErrorCode(), apiErr.ErrorFault(), err)
		}
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	msgOutput, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected output type %T", output.Output)
	}

	content := ""
	toolRequests := []ToolRequest{}
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			content += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			args, err := bedrockToolInput(b.Value.Input)
			if err != nil {
				return nil, fmt.Errorf("bedrock: %w", err)
			}
			toolRequests = append(toolRequests, ToolRequest{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}

	usage := Usage{}
	if output.Usage != nil && output.Usage.InputTokens != nil && output.Usage.OutputTokens != nil {
		usage = NewUsage(int(aws.ToInt32(output.Usage.InputTokens)), int(aws.ToInt32(output.Usage.OutputTokens)))
	} else {
		usage = NewUsage(EstimateMessageTokens(request.Messages), EstimateTokens(content))
		usage.Estimated = true
	}

	finishReason := string(output.StopReason)
	if finishReason == "" {
		finishReason = "stop"
	}

	return &Response{
		Content:      content,
		Model:        a.modelID,
		Usage:        usage,
		FinishReason: finishReason,
		ToolRequests: toolRequests,
	}, nil
}

// bedrockMessages extracts system content and converts the conversation.
// Consecutive tool results are grouped into one user message.
func bedrockMessages(request Request) (string, []brtypes.Message, error) {
	source := request.Messages
	if len(request.Tools) == 0 {
		source = FlattenToolMessages(source)
	}
	system, rest := SplitSystem(source)

	messages := make([]brtypes.Message, 0, len(rest))
	for i := 0; i < len(rest); i++ {
		msg := rest[i]
		switch msg.Role {
		case RoleTool:
			blocks := []brtypes.ContentBlock{bedrockToolResult(msg)}
			for i+1 < len(rest) && rest[i+1].Role == RoleTool {
				i++
				blocks = append(blocks, bedrockToolResult(rest[i]))
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: blocks,
			})
		case RoleAssistant:
			blocks := []brtypes.ContentBlock{}
			if msg.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: msg.Content})
			}
			for _, tr := range msg.ToolRequests {
				args := tr.Arguments
				if args == nil {
					args = map[string]interface{}{}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(tr.ID),
						Name:      aws.String(tr.Name),
						Input:     document.NewLazyDocument(args),
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: blocks,
			})
		default:
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: msg.Content}},
			})
		}
	}
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("bedrock: conversation has no user or assistant messages")
	}
	return system, messages, nil
}

// bedrockToolInput decodes through JSON so numbers come back as float64
// rather than smithy document numbers.
func bedrockToolInput(input document.Interface) (map[string]interface{}, error) {
	if input == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := input.MarshalSmithyDocument()
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool input: %w", err)
	}
	return ParseArguments(string(raw))
}

func bedrockToolResult(msg Message) brtypes.ContentBlock {
	return &brtypes.ContentBlockMemberToolResult{
		Value: brtypes.ToolResultBlock{
			ToolUseId: aws.String(msg.ToolCallID),
			Content: []brtypes.ToolResultContentBlock{
				&brtypes.ToolResultContentBlockMemberText{Value: msg.Content},
			},
		},
	}
}
