package llmgateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRoundTrip(t *testing.T) {
	_, ts := setupTestServer(t,
		&fakeAdapter{name: "gpt-4o", content: "4", native: true},
		&fakeAdapter{name: "gemini-pro", content: "text"},
		&fakeAdapter{name: "broken", err: errors.New("upstream down")},
	)
	client := NewClient(ts.URL+"/", time.Second)
	ctx := context.Background()

	t.Run("generate", func(t *testing.T) {
		resp, err := client.Generate(ctx, userReq("gpt-4o", "2+2"))
		require.NoError(t, err)
		assert.Equal(t, "4", resp.Content)
		assert.False(t, resp.Cached)

		again, err := client.Generate(ctx, userReq("gpt-4o", "2+2"))
		require.NoError(t, err)
		assert.True(t, again.Cached)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := client.Generate(ctx, userReq("nope", "hi"))
		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("validation", func(t *testing.T) {
		req := userReq("gpt-4o", "hi")
		req.MaxTokens = -1
		_, err := client.Generate(ctx, req)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("provider failure", func(t *testing.T) {
		_, err := client.Generate(ctx, userReq("broken", "hi"))
		require.Error(t, err)
		assert.True(t, IsProviderError(err))
		assert.Contains(t, err.Error(), "upstream down")
	})

	t.Run("tool support", func(t *testing.T) {
		native, err := client.ToolSupport(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.True(t, native)

		native, err = client.ToolSupport(ctx, "gemini-pro")
		require.NoError(t, err)
		assert.False(t, native)

		native, err = client.ToolSupport(ctx, "")
		require.NoError(t, err)
		assert.True(t, native)

		_, err = client.ToolSupport(ctx, "nope")
		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("admin", func(t *testing.T) {
		require.NoError(t, client.Health(ctx))

		models, err := client.Models(ctx)
		require.NoError(t, err)
		assert.Len(t, models, 3)

		metrics, err := client.Metrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), metrics.Metrics.Models["gpt-4o"].CacheHits)

		n, err := client.ClearCache(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, client.ResetMetrics(ctx))
		metrics, err = client.Metrics(ctx)
		require.NoError(t, err)
		assert.Empty(t, metrics.Metrics.Models)
	})
}

func TestClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	client := NewClient(url, time.Second)
	_, err := client.Generate(context.Background(), userReq("gpt-4o", "hi"))
	require.Error(t, err)
	assert.True(t, IsProviderError(err))

	assert.Error(t, client.Health(context.Background()))
}

func TestClientNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, time.Second).Generate(context.Background(), userReq("gpt-4o", "hi"))
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Contains(t, err.Error(), "unexpected status 500")
}
