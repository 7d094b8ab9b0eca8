package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("gpt-4o", Message{Role: RoleUser, Content: "hi"})
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Len(t, req.Messages, 1)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
}

func TestRequestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantTemp float64
		wantMax  int
	}{
		{"absent fields take defaults", `{"messages":[]}`, DefaultTemperature, DefaultMaxTokens},
		{"explicit zero temperature is kept", `{"temperature":0}`, 0, DefaultMaxTokens},
		{"explicit zero max tokens is kept", `{"max_tokens":0}`, DefaultTemperature, 0},
		{"explicit values", `{"temperature":1.5,"max_tokens":10}`, 1.5, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.wantTemp, req.Temperature)
			assert.Equal(t, tt.wantMax, req.MaxTokens)
		})
	}

	t.Run("zero max tokens fails validation", func(t *testing.T) {
		var req Request
		require.NoError(t, json.Unmarshal([]byte(`{"messages":[{"role":"user","content":"hi"}],"max_tokens":0}`), &req))
		assert.Error(t, req.Validate())
	})
}

func TestRequestValidate(t *testing.T) {
	user := []Message{{Role: RoleUser, Content: "hi"}}

	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"valid", Request{Messages: user, Temperature: 0.7, MaxTokens: 100}, ""},
		{"upper temperature bound", Request{Messages: user, Temperature: 2, MaxTokens: 1}, ""},
		{"empty messages", Request{Temperature: 0.7, MaxTokens: 100}, "messages cannot be empty"},
		{"negative temperature", Request{Messages: user, Temperature: -0.1, MaxTokens: 100}, "temperature"},
		{"temperature too high", Request{Messages: user, Temperature: 2.1, MaxTokens: 100}, "temperature"},
		{"zero temperature", Request{Messages: user, MaxTokens: 1}, ""},
		{"zero max tokens", Request{Messages: user, Temperature: 0.7}, "max tokens"},
		{"bad role", Request{Messages: []Message{{Role: "robot"}}, Temperature: 0.7, MaxTokens: 1}, "invalid role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResponseClone(t *testing.T) {
	orig := &Response{
		Content: "x",
		ToolRequests: []ToolRequest{
			{ID: "1", Name: "add", Arguments: map[string]interface{}{"a": 1.0}},
		},
	}

	clone := orig.Clone()
	clone.Content = "y"
	clone.ToolRequests[0].Arguments["a"] = 99.0

	assert.Equal(t, "x", orig.Content)
	assert.Equal(t, 1.0, orig.ToolRequests[0].Arguments["a"])

	var nilResp *Response
	assert.Nil(t, nilResp.Clone())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("12345678"))
	assert.Equal(t, 3, EstimateMessageTokens([]Message{
		{Role: RoleUser, Content: "123456"},
		{Role: RoleAssistant, Content: "123456"},
	}))
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "b"},
		{Role: RoleSystem, Content: ""},
	})

	assert.Equal(t, "a\n\nb", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)
}

func TestFlattenToolMessages(t *testing.T) {
	out := FlattenToolMessages([]Message{
		{Role: RoleUser, Content: "2+2"},
		{Role: RoleAssistant, Content: "calling", ToolRequests: []ToolRequest{{ID: "c1", Name: "add"}}},
		{Role: RoleTool, Content: "4", ToolCallID: "c1", Name: "add"},
	})

	require.Len(t, out, 3)
	assert.Empty(t, out[1].ToolRequests)
	assert.Equal(t, RoleUser, out[2].Role)
	assert.Equal(t, "Tool result for add (c1): 4", out[2].Content)
}

func TestArguments(t *testing.T) {
	t.Run("marshal nil", func(t *testing.T) {
		raw, err := MarshalArguments(nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", raw)
	})

	t.Run("parse empty", func(t *testing.T) {
		args, err := ParseArguments("  ")
		require.NoError(t, err)
		assert.Empty(t, args)
	})

	t.Run("parse object", func(t *testing.T) {
		args, err := ParseArguments(`{"a":2,"b":"x"}`)
		require.NoError(t, err)
		assert.Equal(t, 2.0, args["a"])
		assert.Equal(t, "x", args["b"])
	})

	t.Run("parse invalid", func(t *testing.T) {
		_, err := ParseArguments(`{"a":`)
		assert.Error(t, err)
	})
}

func TestPricing(t *testing.T) {
	p := Pricing{InputPer1K: 0.003, OutputPer1K: 0.015}
	assert.InDelta(t, 0.003+0.0075, p.Cost(1000, 500), 1e-12)
	assert.Equal(t, 0.0, p.Cost(0, 0))
}
