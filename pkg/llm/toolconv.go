package llm

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// AnthropicTools converts tool specs to Anthropic tool declarations
func AnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := objectSchema(spec.InputSchema)
		toolParam := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   requiredFields(schema),
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

// OpenAITools converts tool specs to OpenAI function declarations
func OpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	if len(specs) == 0 {
		return nil
	}

	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(objectSchema(spec.InputSchema)),
			},
		})
	}
	return tools
}

// BedrockToolConfig converts tool specs to a Bedrock Converse tool configuration
func BedrockToolConfig(specs []ToolSpec) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}

	tools := make([]brtypes.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(objectSchema(spec.InputSchema)),
				},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

// GeminiTools converts tool specs to Gemini function declarations
func GeminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  GeminiSchema(objectSchema(spec.InputSchema)),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// GeminiSchema converts a JSON schema map to a genai.Schema
func GeminiSchema(schemaMap map[string]interface{}) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				schema.Properties[name] = GeminiSchema(propMap)
			}
		}
	}
	schema.Required = requiredFields(schemaMap)
	if items, ok := schemaMap["items"].(map[string]interface{}); ok {
		schema.Items = GeminiSchema(items)
	}
	return schema
}

// objectSchema guarantees an object schema with a properties map
func objectSchema(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+2)
	for k, v := range schema {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]interface{}{}
	}
	return out
}

// requiredFields reads "required" whether it was built in Go or decoded from JSON
func requiredFields(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return append([]string(nil), required...)
	case []interface{}:
		out := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
