package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func userRequest(content string) Request {
	return NewRequest("", Message{Role: RoleUser, Content: content})
}

func toolConversation() []Message {
	return []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "2+2 please"},
		{Role: RoleAssistant, ToolRequests: []ToolRequest{
			{ID: "c1", Name: "add", Arguments: map[string]interface{}{"a": 2.0, "b": 2.0}},
			{ID: "c2", Name: "multiply", Arguments: map[string]interface{}{"a": 1.0, "b": 1.0}},
		}},
		{Role: RoleTool, ToolCallID: "c1", Name: "add", Content: "4"},
		{Role: RoleTool, ToolCallID: "c2", Name: "multiply", Content: "1"},
	}
}

func TestMissingCredentials(t *testing.T) {
	_, err := NewOpenAIAdapter(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewAnthropicAdapter(AnthropicConfig{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewGeminiAdapter(context.Background(), GeminiConfig{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestOpenAIAdapter(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "add", "arguments": "{\"a\":2,\"b\":2}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	adapter, err := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", adapter.Name())
	assert.True(t, adapter.NativeTools())

	req := userRequest("2+2")
	req.Tools = []ToolSpec{addSpec()}
	resp, err := adapter.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, NewUsage(12, 3), resp.Usage)
	require.Len(t, resp.ToolRequests, 1)
	assert.Equal(t, "call_1", resp.ToolRequests[0].ID)
	assert.Equal(t, 2.0, resp.ToolRequests[0].Arguments["a"])

	tools, ok := body["tools"].([]interface{})
	require.True(t, ok)
	assert.Len(t, tools, 1)
	assert.InDelta(t, 0.005*12/1000+0.015*3/1000, adapter.EstimateCost(12, 3), 1e-12)
}

func TestOpenAIMessages(t *testing.T) {
	t.Run("structured when tools declared", func(t *testing.T) {
		msgs, err := openAIMessages(Request{Messages: toolConversation(), Tools: []ToolSpec{addSpec()}})
		require.NoError(t, err)
		require.Len(t, msgs, 5)
		assert.NotNil(t, msgs[2].OfAssistant)
		assert.NotNil(t, msgs[3].OfTool)
		assert.NotNil(t, msgs[4].OfTool)
	})

	t.Run("flattened without tools", func(t *testing.T) {
		msgs, err := openAIMessages(Request{Messages: toolConversation()})
		require.NoError(t, err)
		require.Len(t, msgs, 5)
		assert.Nil(t, msgs[3].OfTool)
		assert.NotNil(t, msgs[3].OfUser)
	})
}

func TestAnthropicAdapter(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type": "text", "text": "Let me add."},
				{"type": "tool_use", "id": "toolu_1", "name": "add", "input": {"a": 2, "b": 2}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`)
	}))
	defer server.Close()

	adapter, err := NewAnthropicAdapter(AnthropicConfig{APIKey: "sk-ant-test", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	req := NewRequest("", toolConversation()...)
	req.Tools = []ToolSpec{addSpec()}
	resp, err := adapter.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Let me add.", resp.Content)
	assert.Equal(t, "tool_use", resp.FinishReason)
	assert.Equal(t, 27, resp.Usage.TotalTokens)
	require.Len(t, resp.ToolRequests, 1)
	assert.Equal(t, "toolu_1", resp.ToolRequests[0].ID)
	assert.Equal(t, 2.0, resp.ToolRequests[0].Arguments["b"])

	// system prompt is a separate field and both tool results share one user message
	assert.NotNil(t, body["system"])
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 3)
}

type fakeConverse struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestBedrockAdapter(t *testing.T) {
	t.Run("tool use with reported usage", func(t *testing.T) {
		fake := &fakeConverse{output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "adding"},
					&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String("tu_1"),
						Name:      aws.String("add"),
						Input:     document.NewLazyDocument(map[string]interface{}{"a": 2, "b": 2}),
					}},
				},
			}},
			StopReason: brtypes.StopReasonToolUse,
			Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(30), OutputTokens: aws.Int32(9)},
		}}
		adapter := NewBedrockAdapterWithClient(fake, BedrockConfig{})

		req := NewRequest("", toolConversation()...)
		req.Tools = []ToolSpec{addSpec()}
		resp, err := adapter.Generate(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, "adding", resp.Content)
		assert.Equal(t, "tool_use", resp.FinishReason)
		assert.Equal(t, "us.amazon.nova-pro-v1:0", resp.Model)
		assert.Equal(t, NewUsage(30, 9), resp.Usage)
		require.Len(t, resp.ToolRequests, 1)
		assert.Equal(t, 2.0, resp.ToolRequests[0].Arguments["a"])

		require.NotNil(t, fake.input)
		assert.Len(t, fake.input.System, 1)
		assert.NotNil(t, fake.input.ToolConfig)
		// user, assistant with tool use, grouped tool results
		assert.Len(t, fake.input.Messages, 3)
		assert.Len(t, fake.input.Messages[2].Content, 2)
	})

	t.Run("inference config passes zero temperature and clamps max tokens", func(t *testing.T) {
		fake := &fakeConverse{output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "ok"}},
			}},
		}}
		adapter := NewBedrockAdapterWithClient(fake, BedrockConfig{})

		req := userRequest("hi")
		req.Temperature = 0
		req.MaxTokens = math.MaxInt32 + 1
		_, err := adapter.Generate(context.Background(), req)
		require.NoError(t, err)

		require.NotNil(t, fake.input)
		assert.Equal(t, int32(math.MaxInt32), aws.ToInt32(fake.input.InferenceConfig.MaxTokens))
		assert.Equal(t, float32(0), aws.ToFloat32(fake.input.InferenceConfig.Temperature))
	})

	t.Run("estimates usage when missing", func(t *testing.T) {
		fake := &fakeConverse{output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "12345678"}},
			}},
		}}
		adapter := NewBedrockAdapterWithClient(fake, BedrockConfig{})

		resp, err := adapter.Generate(context.Background(), userRequest("1234"))
		require.NoError(t, err)
		assert.True(t, resp.Usage.Estimated)
		assert.Equal(t, 1, resp.Usage.InputTokens)
		assert.Equal(t, 2, resp.Usage.OutputTokens)
		assert.Equal(t, "stop", resp.FinishReason)
	})

	t.Run("provider failure", func(t *testing.T) {
		fake := &fakeConverse{err: errors.New("throttled")}
		adapter := NewBedrockAdapterWithClient(fake, BedrockConfig{})

		_, err := adapter.Generate(context.Background(), userRequest("hi"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttled")
	})

	t.Run("service error is classified", func(t *testing.T) {
		apiErr := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down", Fault: smithy.FaultServer}
		adapter := NewBedrockAdapterWithClient(&fakeConverse{err: apiErr}, BedrockConfig{})

		_, err := adapter.Generate(context.Background(), userRequest("hi"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ThrottlingException (server fault)")
		var got smithy.APIError
		require.ErrorAs(t, err, &got)
		assert.Equal(t, "slow down", got.ErrorMessage())
	})

	t.Run("system only conversation", func(t *testing.T) {
		adapter := NewBedrockAdapterWithClient(&fakeConverse{}, BedrockConfig{})
		req := NewRequest("", Message{Role: RoleSystem, Content: "x"})
		_, err := adapter.Generate(context.Background(), req)
		assert.Error(t, err)
	})
}

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, nil
}

func TestGeminiAdapter(t *testing.T) {
	fake := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "The answer is 4"}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}}
	adapter := NewGeminiAdapterWithClient(fake, GeminiConfig{})
	assert.False(t, adapter.NativeTools())

	req := NewRequest("", toolConversation()...)
	resp, err := adapter.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "The answer is 4", resp.Content)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, "gemini-1.5-flash", fake.model)
	assert.True(t, resp.Usage.Estimated)
	assert.Equal(t, EstimateTokens("The answer is 4"), resp.Usage.OutputTokens)

	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, int32(DefaultMaxTokens), fake.config.MaxOutputTokens)
	// the assistant turn with only tool requests is dropped, tool results become user turns
	require.Len(t, fake.contents, 3)
	assert.Equal(t, genai.RoleUser, fake.contents[0].Role)
	assert.Contains(t, fake.contents[1].Parts[0].Text, "Tool result for add")
}
