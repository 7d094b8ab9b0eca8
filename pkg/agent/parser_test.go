package agent

import (
	"strings"
	"testing"

	"github.com/harun/conduit/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCalls(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []llm.ToolRequest
	}{
		{
			name:  "single call",
			input: "TOOL_CALL: add\nARGUMENTS: {\"a\": 2, \"b\": 2}",
			want:  []llm.ToolRequest{{Name: "add", Arguments: map[string]interface{}{"a": 2.0, "b": 2.0}}},
		},
		{
			name:  "surrounding prose",
			input: "Let me compute that.\nTOOL_CALL: uppercase\nARGUMENTS: {\"text\": \"hi\"}\nThen I will answer.",
			want:  []llm.ToolRequest{{Name: "uppercase", Arguments: map[string]interface{}{"text": "hi"}}},
		},
		{
			name:  "multiple calls",
			input: "TOOL_CALL: add\nARGUMENTS: {\"a\": 1, \"b\": 2}\nTOOL_CALL: count_words\nARGUMENTS: {\"text\": \"a b c\"}",
			want: []llm.ToolRequest{
				{Name: "add", Arguments: map[string]interface{}{"a": 1.0, "b": 2.0}},
				{Name: "count_words", Arguments: map[string]interface{}{"text": "a b c"}},
			},
		},
		{
			name:  "missing arguments",
			input: "TOOL_CALL: list_everything",
			want:  []llm.ToolRequest{{Name: "list_everything", Arguments: map[string]interface{}{}}},
		},
		{
			name:  "quoted name",
			input: "TOOL_CALL: `add`\nARGUMENTS: {\"a\": 1, \"b\": 1}",
			want:  []llm.ToolRequest{{Name: "add", Arguments: map[string]interface{}{"a": 1.0, "b": 1.0}}},
		},
		{
			name:  "indented markers",
			input: "  TOOL_CALL: add\n  ARGUMENTS: {\"a\": 1, \"b\": 1}",
			want:  []llm.ToolRequest{{Name: "add", Arguments: map[string]interface{}{"a": 1.0, "b": 1.0}}},
		},
		{name: "plain prose", input: "The answer is 4.", want: nil},
		{name: "marker mid-line is prose", input: "I would write TOOL_CALL: add here", want: nil},
		{name: "broken json", input: "TOOL_CALL: add\nARGUMENTS: {\"a\": 2,", want: nil},
		{name: "array arguments", input: "TOOL_CALL: add\nARGUMENTS: [1, 2]", want: nil},
		{name: "empty name", input: "TOOL_CALL:\nARGUMENTS: {}", want: nil},
		{name: "name with spaces", input: "TOOL_CALL: add numbers\nARGUMENTS: {}", want: nil},
		{
			name:  "one malformed pair spoils the reply",
			input: "TOOL_CALL: add\nARGUMENTS: {\"a\": 1, \"b\": 1}\nTOOL_CALL: divide\nARGUMENTS: {oops}",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseToolCalls(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Name, got[i].Name)
				assert.Equal(t, tt.want[i].Arguments, got[i].Arguments)
				assert.True(t, strings.HasPrefix(got[i].ID, "call_"))
			}
		})
	}
}

func TestParseToolCallsUniqueIDs(t *testing.T) {
	reply := strings.Repeat("TOOL_CALL: add\nARGUMENTS: {\"a\": 1, \"b\": 1}\n", 5)
	got := ParseToolCalls(reply)
	require.Len(t, got, 5)

	seen := make(map[string]bool)
	for _, req := range got {
		assert.False(t, seen[req.ID], "duplicate id %s", req.ID)
		seen[req.ID] = true
	}
}

func TestEnsureCallIDs(t *testing.T) {
	in := []llm.ToolRequest{
		{ID: "a", Name: "add"},
		{ID: "a", Name: "subtract"},
		{Name: "multiply"},
	}
	out := ensureCallIDs(in)

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.NotEqual(t, "a", out[1].ID)
	assert.NotEmpty(t, out[2].ID)
	assert.NotNil(t, out[2].Arguments)
	assert.Equal(t, "", in[2].ID)
}

func TestInferModel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"use gpt to answer", "gpt-4o"},
		{"Please USE OpenAI", "gpt-4o"},
		{"usa gpt-4 por favor", "gpt-4o"},
		{"with gemini please", "gemini-pro"},
		{"utiliza google", "gemini-pro"},
		{"con bedrock", "bedrock-nova-pro"},
		{"use nova for this", "bedrock-nova-pro"},
		{"use claude", "claude-sonnet"},
		{"with anthropic", "claude-sonnet"},
		{"what is gemini?", ""},
		{"users of gpt", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, InferModel(tt.input))
		})
	}
}
