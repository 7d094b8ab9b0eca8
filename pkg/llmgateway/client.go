package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harun/conduit/pkg/llm"
)

// Client talks to a remote gateway over the generation protocol
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	models       map[string]llm.Info
	defaultModel string
}

// NewClient creates a client for the gateway at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Generate posts a generation request and maps error statuses back onto gateway errors
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var resp llm.Response
	status, err := c.do(ctx, http.MethodPost, "/mcp/llm/generate", req, &resp)
	if err != nil {
		if status == 0 {
			return nil, &ProviderError{Model: req.Model, Provider: "llm-gateway", Err: err}
		}
		return nil, c.statusError(status, req.Model, err)
	}
	return &resp, nil
}

// ToolSupport reports whether the remote model takes structured tools.
// The model list is fetched once and reused.
func (c *Client) ToolSupport(ctx context.Context, model string) (bool, error) {
	if err := c.loadModels(ctx); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if model == "" {
		model = c.defaultModel
	}
	info, ok := c.models[model]
	if !ok {
		available := make([]string, 0, len(c.models))
		for name := range c.models {
			available = append(available, name)
		}
		return false, &UnknownModelError{Model: model, Available: available}
	}
	return info.SupportsTools, nil
}

// Models lists the remote gateway's models
func (c *Client) Models(ctx context.Context) ([]llm.Info, error) {
	var out ModelsResponse
	if _, err := c.do(ctx, http.MethodGet, "/mcp/llm/list", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return out.LLMs, nil
}

// Health probes the remote gateway
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("model gateway unhealthy: %w", err)
	}
	return nil
}

// Metrics fetches the remote metrics and cache stats
func (c *Client) Metrics(ctx context.Context) (*MetricsResponse, error) {
	var out MetricsResponse
	if _, err := c.do(ctx, http.MethodGet, "/metrics", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	return &out, nil
}

// ResetMetrics resets the remote metrics accumulator
func (c *Client) ResetMetrics(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/metrics/reset", nil, nil)
	return err
}

// ClearCache clears the remote cache and returns the entries removed
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	var out struct {
		Entries int `json:"entries"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/cache/clear", nil, &out); err != nil {
		return 0, err
	}
	return out.Entries, nil
}

func (c *Client) loadModels(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.models != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	infos, err := c.Models(ctx)
	if err != nil {
		return err
	}
	var health struct {
		DefaultModel string `json:"default_model"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return fmt.Errorf("model gateway unhealthy: %w", err)
	}

	models := make(map[string]llm.Info, len(infos))
	for _, info := range infos {
		models[info.Name] = info
	}

	c.mu.Lock()
	c.models = models
	c.defaultModel = health.DefaultModel
	c.mu.Unlock()
	return nil
}

// statusError rebuilds a typed error from a non-2xx reply
func (c *Client) statusError(status int, model string, err error) error {
	switch {
	case status == http.StatusBadRequest && strings.Contains(err.Error(), ErrUnknownModel.Error()):
		return &UnknownModelError{Model: model}
	case status == http.StatusBadRequest:
		return &ValidationError{Err: err}
	default:
		return &ProviderError{Model: model, Provider: "llm-gateway", Err: err}
	}
}

// do sends a JSON request. A zero status means the request never got a reply.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
			return resp.StatusCode, errors.New(e.Detail)
		}
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
