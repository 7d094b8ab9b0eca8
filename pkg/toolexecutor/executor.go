package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout bounds a single tool call
const DefaultTimeout = 30 * time.Second

// maxOutputSize bounds a tool result before truncation
const maxOutputSize = 10 * 1024

// ErrToolNotFound is returned for names with no registered tool
var ErrToolNotFound = errors.New("tool not found")

// ValidationError reports arguments rejected by the tool's schema
type ValidationError struct {
	Tool   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Errors, "; "))
}

// ExecutionError wraps a failure raised by a tool handler
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    ToolCategory    `json:"category,omitempty"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// InputSchema derives the JSON schema object advertised to models
func (d ToolDefinition) InputSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := []string{}

	for _, param := range d.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Definition is the wire form of a registered tool
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	timeout time.Duration
	mu      sync.RWMutex
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: DefaultTimeout,
	}

	observability.EnsureRegistered()
	log.Info().Msg("Tool executor initialized")

	return te
}

// SetTimeout changes the per-call timeout; zero or negative restores the default
func (te *ToolExecutor) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	te.mu.Lock()
	defer te.mu.Unlock()
	te.timeout = timeout
}

// RegisterTool registers a new tool, replacing any tool with the same name
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := te.validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema()))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		log.Warn().Str("tool", def.Name).Msg("Tool re-registered, replacing previous definition")
	}
	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Str("category", string(def.Category)).Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)

	log.Info().Str("tool", name).Msg("Tool unregistered")
}

// GetTool returns a tool definition by name, or nil
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns all registered tool names, sorted
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	tools := make([]string, 0, len(te.tools))
	for name := range te.tools {
		tools = append(tools, name)
	}
	sort.Strings(tools)

	return tools
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Definitions returns the wire form of every tool, sorted by name
func (te *ToolExecutor) Definitions() []Definition {
	names := te.ListTools()

	te.mu.RLock()
	defer te.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		tool, ok := te.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, Definition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// Execute validates the arguments and runs the named tool under the per-call timeout.
// The result is rendered as text.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}) (string, error) {
	startTime := time.Now()

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	timeout := te.timeout
	te.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", toolName).Msg("Tool not found")
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerToolbox, "toolbox.execute", attribute.String("tool", toolName))
	defer span.End()

	if err := te.validateParameters(toolName, schema, params); err != nil {
		log.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		tracing.RecordError(span, err)
		return "", err
	}

	log.Debug().Str("tool", toolName).Msg("Executing tool")

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("panic: %v", r)
			}
		}()
		result, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		duration := time.Since(startTime)
		output, truncated := truncateOutput(FormatResult(result))

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")
		observability.RecordToolExecution(toolName, duration, true)

		return output, nil

	case err := <-errChan:
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		observability.RecordToolExecution(toolName, duration, false)

		execErr := &ExecutionError{Tool: toolName, Err: err}
		tracing.RecordError(span, execErr)
		return "", execErr

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution timeout")
		observability.RecordToolExecution(toolName, duration, false)

		execErr := &ExecutionError{Tool: toolName, Err: fmt.Errorf("execution timeout after %v: %w", timeout, timeoutCtx.Err())}
		tracing.RecordError(span, execErr)
		return "", execErr
	}
}

// FormatResult renders a handler result as text. Floats drop trailing zeros.
func FormatResult(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// validateToolDefinition validates a tool definition
func (te *ToolExecutor) validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler is required")
	}
	if !def.Category.valid() {
		return fmt.Errorf("unknown tool category: %s", def.Category)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	seen := make(map[string]bool, len(def.Parameters))
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name is required")
		}
		if seen[param.Name] {
			return fmt.Errorf("duplicate parameter %s", param.Name)
		}
		seen[param.Name] = true
		if param.Description == "" {
			return fmt.Errorf("parameter description is required for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
	}

	return nil
}

// validateParameters validates parameters against the compiled schema
func (te *ToolExecutor) validateParameters(toolName string, schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &ValidationError{Tool: toolName, Errors: []string{err.Error()}}
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}
		return &ValidationError{Tool: toolName, Errors: messages}
	}

	return nil
}

// truncateOutput truncates output if it exceeds the size limit
func truncateOutput(output string) (string, bool) {
	if len(output) <= maxOutputSize {
		return output, false
	}

	log.Warn().
		Int("original", len(output)).
		Int("truncated", maxOutputSize).
		Msg("Output truncated")

	return output[:maxOutputSize] + "\n... [output truncated]", true
}
