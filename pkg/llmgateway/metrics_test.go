package llmgateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(nil)

	m.Record("gpt-4o", 100*time.Millisecond, 150, 0.01, false, false)
	m.Record("gpt-4o", 10*time.Millisecond, 0, 0, true, false)
	m.Record("gpt-4o", 50*time.Millisecond, 0, 0, false, true)
	m.Record("gemini-pro", 20*time.Millisecond, 40, 0.002, false, false)

	snap := m.Snapshot()
	require.Contains(t, snap.Models, "gpt-4o")

	gpt := snap.Models["gpt-4o"]
	assert.Equal(t, int64(3), gpt.Calls)
	assert.Equal(t, int64(1), gpt.CacheHits)
	assert.Equal(t, int64(1), gpt.Errors)
	assert.Equal(t, int64(150), gpt.TotalTokens)
	assert.InDelta(t, 0.01, gpt.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(3), gpt.Latency.Count)
	assert.InDelta(t, 10.0, gpt.Latency.MinMs, 1e-9)
	assert.InDelta(t, 100.0, gpt.Latency.MaxMs, 1e-9)
	assert.InDelta(t, 160.0/3, gpt.Latency.AvgMs, 1e-9)

	assert.Equal(t, int64(4), snap.Totals.Calls)
	assert.Equal(t, int64(190), snap.Totals.TotalTokens)
	assert.InDelta(t, 0.012, snap.Totals.TotalCostUSD, 1e-9)
	assert.InDelta(t, 10.0, snap.Totals.Latency.MinMs, 1e-9)
	assert.InDelta(t, 0.25, snap.CacheHitRate, 1e-9)
}

func TestMetricsPercentiles(t *testing.T) {
	m := NewMetrics(nil)
	for i := 1; i <= 100; i++ {
		m.Record("gpt-4o", time.Duration(i)*time.Millisecond, 1, 0, false, false)
	}

	lat := m.Snapshot().Models["gpt-4o"].Latency
	assert.InDelta(t, 50.0, lat.P50Ms, 1e-9)
	assert.InDelta(t, 95.0, lat.P95Ms, 1e-9)
}

func TestMetricsWindowBounded(t *testing.T) {
	m := NewMetrics(nil)
	for i := 0; i < latencyWindow+10; i++ {
		m.Record("gpt-4o", time.Millisecond, 1, 0, false, false)
	}

	m.mu.Lock()
	samples := len(m.models["gpt-4o"].samples)
	m.mu.Unlock()

	assert.Equal(t, latencyWindow, samples)
	assert.Equal(t, int64(latencyWindow+10), m.Snapshot().Models["gpt-4o"].Latency.Count)
}

func TestMetricsReset(t *testing.T) {
	clock := newFakeClock()
	m := NewMetrics(clock.Now)
	m.Record("gpt-4o", time.Millisecond, 1, 0, false, false)

	clock.Advance(time.Hour)
	m.Reset()

	snap := m.Snapshot()
	assert.Empty(t, snap.Models)
	assert.Equal(t, int64(0), snap.Totals.Calls)
	assert.Equal(t, clock.Now(), snap.Since)
	assert.Zero(t, snap.CacheHitRate)
}

func TestMetricsConcurrentRecord(t *testing.T) {
	m := NewMetrics(nil)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Record("gpt-4o", time.Millisecond, 10, 0.001, i%2 == 0, false)
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot().Models["gpt-4o"]
	assert.Equal(t, int64(1000), snap.Calls)
	assert.Equal(t, int64(500), snap.CacheHits)
	assert.Equal(t, int64(5000), snap.TotalTokens)
}
