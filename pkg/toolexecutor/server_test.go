package toolexecutor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupToolbox(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(ServerOptions{}, newBuiltinExecutor(t))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServerRequiresExecutor(t *testing.T) {
	_, err := NewServer(ServerOptions{}, nil)
	assert.Error(t, err)

	srv, err := NewServer(ServerOptions{}, New())
	require.NoError(t, err)
	assert.Equal(t, 8002, srv.options.Port)
}

func TestServerListTools(t *testing.T) {
	_, ts := setupToolbox(t)

	resp := post(t, ts.URL+"/mcp/tools/list", "{}")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Tools []struct {
			Name        string                 `json:"name"`
			Description string                 `json:"description"`
			InputSchema map[string]interface{} `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Tools, 7)

	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.Equal(t, []string{"add", "count_words", "divide", "lowercase", "multiply", "subtract", "uppercase"}, names)
}

func TestServerCallTool(t *testing.T) {
	_, ts := setupToolbox(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantText   string
		wantDetail string
	}{
		{
			name:       "success",
			body:       `{"name":"add","arguments":{"a":2,"b":2}}`,
			wantStatus: http.StatusOK,
			wantText:   "4",
		},
		{
			name:       "text tool",
			body:       `{"name":"uppercase","arguments":{"text":"hi"}}`,
			wantStatus: http.StatusOK,
			wantText:   "HI",
		},
		{
			name:       "unknown tool",
			body:       `{"name":"teleport","arguments":{}}`,
			wantStatus: http.StatusNotFound,
			wantDetail: "tool not found",
		},
		{
			name:       "invalid arguments",
			body:       `{"name":"add","arguments":{"a":"x"}}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "invalid arguments",
		},
		{
			name:       "execution failure",
			body:       `{"name":"divide","arguments":{"a":1,"b":0}}`,
			wantStatus: http.StatusInternalServerError,
			wantDetail: "cannot divide by zero",
		},
		{
			name:       "malformed body",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "invalid request body",
		},
		{
			name:       "missing name",
			body:       `{"arguments":{}}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "tool name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/mcp/tools/call", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantDetail != "" {
				var e ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
				assert.Contains(t, e.Detail, tt.wantDetail)
				return
			}

			var out CallResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			require.Len(t, out.Content, 1)
			assert.Equal(t, "text", out.Content[0].Type)
			assert.Equal(t, tt.wantText, out.Content[0].Text)
		})
	}
}

func TestServerHealth(t *testing.T) {
	_, ts := setupToolbox(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "toolbox", body["service"])
	assert.Equal(t, float64(7), body["tools"])
	cats, ok := body["categories"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, cats["math"], 4)
	assert.Len(t, cats["text"], 3)
}

func TestServerMethodNotAllowed(t *testing.T) {
	_, ts := setupToolbox(t)

	resp, err := http.Get(ts.URL + "/mcp/tools/call")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerShutdownRejectsCalls(t *testing.T) {
	srv, ts := setupToolbox(t)
	require.NoError(t, srv.Stop(context.Background()))

	resp := post(t, ts.URL+"/mcp/tools/list", "{}")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
