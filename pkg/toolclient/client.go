package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/conduit/internal/tracing"
	"github.com/harun/conduit/pkg/llm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout bounds each request to the tool provider
const DefaultTimeout = 30 * time.Second

// ErrToolProviderUnavailable wraps every discovery or health failure
var ErrToolProviderUnavailable = errors.New("tool provider unavailable")

// Kind tags the result of an invocation
type Kind int

const (
	KindOK Kind = iota
	KindToolNotFound
	KindTransportError
	KindExecutionError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindToolNotFound:
		return "tool_not_found"
	case KindTransportError:
		return "tool_transport_error"
	case KindExecutionError:
		return "tool_execution_error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one invocation. Err is nil only for KindOK.
type Outcome struct {
	Kind Kind
	Text string
	Err  error
}

// OK reports whether the tool produced a result
func (o Outcome) OK() bool {
	return o.Kind == KindOK
}

// Content is the text fed back to the model: the result, or "Error: <message>"
func (o Outcome) Content() string {
	if o.Kind == KindOK {
		return o.Text
	}
	if o.Err == nil {
		return "Error: " + o.Kind.String()
	}
	return "Error: " + o.Err.Error()
}

// Client discovers and invokes tools on a remote tool provider
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	mu    sync.RWMutex
	tools map[string]llm.ToolSpec
	order []string
}

type listResponse struct {
	Tools []llm.ToolSpec `json:"tools"`
}

type callRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type callResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New creates a client for the tool provider at baseURL
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "toolclient").Logger(),
		tools:   make(map[string]llm.ToolSpec),
	}
}

// Discover fetches the tool list and replaces the known definitions
func (c *Client) Discover(ctx context.Context) ([]llm.ToolSpec, error) {
	var list listResponse
	status, raw, err := c.post(ctx, "/mcp/tools/list", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolProviderUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned status %d: %s", ErrToolProviderUnavailable, status, detail(raw))
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: failed to decode tool list: %v", ErrToolProviderUnavailable, err)
	}

	tools := make(map[string]llm.ToolSpec, len(list.Tools))
	order := make([]string, 0, len(list.Tools))
	for _, spec := range list.Tools {
		if spec.Name == "" {
			continue
		}
		if _, dup := tools[spec.Name]; !dup {
			order = append(order, spec.Name)
		}
		tools[spec.Name] = spec
	}
	sort.Strings(order)

	c.mu.Lock()
	c.tools = tools
	c.order = order
	c.mu.Unlock()

	c.logger.Info().Int("count", len(order)).Strs("tools", order).Msg("Tools discovered")
	return c.Tools(), nil
}

// Tools returns the discovered definitions, sorted by name
func (c *Client) Tools() []llm.ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(c.order))
	for _, name := range c.order {
		specs = append(specs, c.tools[name])
	}
	return specs
}

// Has reports whether a tool was discovered
func (c *Client) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tools[name]
	return ok
}

// Invoke calls a discovered tool. It never returns a bare error: every failure is an Outcome.
// Unknown names fail without a network call.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]interface{}) Outcome {
	if !c.Has(name) {
		c.mu.RLock()
		available := strings.Join(c.order, ", ")
		c.mu.RUnlock()
		c.logger.Warn().Str("tool", name).Msg("Tool not found")
		return Outcome{Kind: KindToolNotFound, Err: fmt.Errorf("tool %q not found (available: %s)", name, available)}
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerToolClient, "toolclient.invoke", attribute.String("tool", name))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	start := time.Now()
	status, raw, err := c.post(ctx, "/mcp/tools/call", callRequest{Name: name, Arguments: args})
	if err != nil {
		tracing.RecordError(span, err)
		logger.Error().Err(err).Str("tool", name).Msg("Tool transport failed")
		return Outcome{Kind: KindTransportError, Err: fmt.Errorf("failed to call tool %s: %w", name, err)}
	}

	switch {
	case status == http.StatusNotFound:
		err := fmt.Errorf("tool %q not found: %s", name, detail(raw))
		tracing.RecordError(span, err)
		return Outcome{Kind: KindToolNotFound, Err: err}
	case status < 200 || status >= 300:
		err := errors.New(detail(raw))
		tracing.RecordError(span, err)
		logger.Warn().Str("tool", name).Int("status", status).Err(err).Msg("Tool execution failed")
		return Outcome{Kind: KindExecutionError, Err: err}
	}

	var out callResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		tracing.RecordError(span, err)
		return Outcome{Kind: KindTransportError, Err: fmt.Errorf("failed to decode result of %s: %w", name, err)}
	}

	text := ""
	if len(out.Content) > 0 {
		text = out.Content[0].Text
	} else {
		logger.Warn().Str("tool", name).Msg("Tool returned no content")
	}

	logger.Debug().
		Str("tool", name).
		Dur("duration", time.Since(start)).
		Msg("Tool invoked")
	return Outcome{Kind: KindOK, Text: text}
}

// Health probes the tool provider
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrToolProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", ErrToolProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// detail extracts {detail} from an error body, falling back to the raw text
func detail(raw []byte) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty response"
	}
	return text
}
