package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDivisionByZero is returned by the divide tool
var ErrDivisionByZero = errors.New("cannot divide by zero")

// RegisterBuiltins registers the arithmetic and text tools
func RegisterBuiltins(te *ToolExecutor) error {
	for _, def := range BuiltinTools() {
		if err := te.RegisterTool(def); err != nil {
			return fmt.Errorf("failed to register builtin %s: %w", def.Name, err)
		}
	}
	return nil
}

// BuiltinTools returns the definitions of the builtin tools
func BuiltinTools() []ToolDefinition {
	return []ToolDefinition{
		binaryTool("add", "Add two numbers together", "First number", "Second number",
			func(a, b float64) (float64, error) { return a + b, nil }),
		binaryTool("subtract", "Subtract the second number from the first", "Number to subtract from", "Number to subtract",
			func(a, b float64) (float64, error) { return a - b, nil }),
		binaryTool("multiply", "Multiply two numbers", "First factor", "Second factor",
			func(a, b float64) (float64, error) { return a * b, nil }),
		binaryTool("divide", "Divide two numbers", "Numerator (number to be divided)", "Denominator (number to divide by, must not be zero)",
			func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, ErrDivisionByZero
				}
				return a / b, nil
			}),
		textTool("uppercase", "Convert text to uppercase", "Text to convert",
			func(s string) interface{} { return strings.ToUpper(s) }),
		textTool("lowercase", "Convert text to lowercase", "Text to convert",
			func(s string) interface{} { return strings.ToLower(s) }),
		textTool("count_words", "Count the number of words in a text", "Text to count words in",
			func(s string) interface{} { return len(strings.Fields(s)) }),
	}
}

func binaryTool(name, description, aDesc, bDesc string, op func(a, b float64) (float64, error)) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		Category:    CategoryMath,
		Parameters: []ToolParameter{
			{Name: "a", Type: "number", Description: aDesc, Required: true},
			{Name: "b", Type: "number", Description: bDesc, Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			a, err := numberParam(params, "a")
			if err != nil {
				return nil, err
			}
			b, err := numberParam(params, "b")
			if err != nil {
				return nil, err
			}
			return op(a, b)
		},
	}
}

func textTool(name, description, textDesc string, op func(string) interface{}) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		Category:    CategoryText,
		Parameters: []ToolParameter{
			{Name: "text", Type: "string", Description: textDesc, Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			text, ok := params["text"].(string)
			if !ok {
				return nil, fmt.Errorf("text must be a string")
			}
			return op(text), nil
		},
	}
}

// numberParam reads a numeric argument decoded from JSON or passed natively
func numberParam(params map[string]interface{}, key string) (float64, error) {
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}
