package toolclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/conduit/pkg/llm"
)

// Format selects the shape of DescribeForModel's output
type Format string

const (
	FormatAnthropic Format = "anthropic"
	FormatOpenAI    Format = "openai"
	FormatBedrock   Format = "bedrock"
	FormatGemini    Format = "gemini"
	FormatText      Format = "text"
	FormatMCP       Format = "mcp"
)

// DescribeForModel renders the discovered tools for a model family.
// FormatText yields a system prompt describing the TOOL_CALL/ARGUMENTS protocol.
func (c *Client) DescribeForModel(format Format) (interface{}, error) {
	return Describe(c.Tools(), format)
}

// Describe renders tool specs in the requested format
func Describe(specs []llm.ToolSpec, format Format) (interface{}, error) {
	switch format {
	case FormatAnthropic:
		return llm.AnthropicTools(specs), nil
	case FormatOpenAI:
		return llm.OpenAITools(specs), nil
	case FormatBedrock:
		return llm.BedrockToolConfig(specs), nil
	case FormatGemini:
		return llm.GeminiTools(specs), nil
	case FormatText:
		return TextPrompt(specs), nil
	case FormatMCP:
		out := make([]llm.ToolSpec, len(specs))
		copy(out, specs)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown tool format %q", format)
	}
}

// TextPrompt builds the system prompt for models without native tool calling
func TextPrompt(specs []llm.ToolSpec) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant with access to the following tools:\n\n")

	for _, spec := range specs {
		description := spec.Description
		if description == "" {
			description = "No description"
		}
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, description)
		if props, ok := spec.InputSchema["properties"]; ok {
			if data, err := json.Marshal(props); err == nil {
				fmt.Fprintf(&b, "  Parameters: %s\n", data)
			}
		}
		if required, ok := spec.InputSchema["required"]; ok {
			if data, err := json.Marshal(required); err == nil {
				fmt.Fprintf(&b, "  Required: %s\n", data)
			}
		}
	}

	b.WriteString("\nWhen you need to use a tool, respond with a tool call in this exact format:\n")
	b.WriteString("TOOL_CALL: tool_name\n")
	b.WriteString("ARGUMENTS: {\"arg1\": \"value1\", \"arg2\": \"value2\"}\n")
	b.WriteString("\nYou may issue several tool calls, one TOOL_CALL/ARGUMENTS pair each.\n")
	b.WriteString("If you don't need any tools, just respond normally to help the user.")
	return b.String()
}
