package llmgateway

import (
	"testing"
	"time"

	"github.com/harun/conduit/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJanitor(t *testing.T) {
	_, err := NewJanitor(nil, "", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewJanitor(NewCache(1, time.Minute, nil), "not a schedule", zerolog.Nop())
	assert.Error(t, err)

	j, err := NewJanitor(NewCache(1, time.Minute, nil), "", zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, j)
}

func TestJanitorSweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(10, time.Minute, clock.Now)
	cache.Set("a", &llm.Response{})
	cache.Set("b", &llm.Response{})

	j, err := NewJanitor(cache, "*/5 * * * *", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 0, j.Sweep())
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, j.Sweep())
	assert.Equal(t, 0, cache.Len())
}

func TestJanitorStartStop(t *testing.T) {
	j, err := NewJanitor(NewCache(1, time.Minute, nil), "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	j.Start()
	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestGatewayJanitor(t *testing.T) {
	cfg := Config{DefaultModel: "gpt-4o", CacheEnabled: true, CacheTTL: time.Minute, CacheMaxSize: 1, SweepSchedule: "not a schedule"}
	gw := setupTestGateway(t, cfg, &fakeAdapter{name: "gpt-4o"})
	_, err := gw.Janitor()
	assert.Error(t, err)

	cfg.SweepSchedule = "@every 1h"
	gw = setupTestGateway(t, cfg, &fakeAdapter{name: "gpt-4o"})
	j, err := gw.Janitor()
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Same(t, gw.Cache(), j.cache)
}
