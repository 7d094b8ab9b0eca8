package llmgateway

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindow bounds the samples kept per model for percentiles
const latencyWindow = 1024

// LatencyStats summarizes call latency in milliseconds
type LatencyStats struct {
	Count int64   `json:"count"`
	SumMs float64 `json:"sum_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// ModelMetrics are the counters for one model
type ModelMetrics struct {
	Calls        int64        `json:"calls"`
	CacheHits    int64        `json:"cache_hits"`
	Errors       int64        `json:"errors"`
	TotalTokens  int64        `json:"total_tokens"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	Latency      LatencyStats `json:"latency"`
}

// MetricsSnapshot is a copy of the accumulator at one point in time
type MetricsSnapshot struct {
	Since        time.Time               `json:"since"`
	Models       map[string]ModelMetrics `json:"models"`
	Totals       ModelMetrics            `json:"totals"`
	CacheHitRate float64                 `json:"cache_hit_rate"`
}

type modelAccumulator struct {
	ModelMetrics
	samples []float64
	next    int
}

// Metrics accumulates per-model call statistics.
// It is reset only by an explicit Reset.
type Metrics struct {
	mu     sync.Mutex
	since  time.Time
	clock  Clock
	models map[string]*modelAccumulator
}

// NewMetrics creates an empty accumulator. A nil clock uses time.Now.
func NewMetrics(clock Clock) *Metrics {
	if clock == nil {
		clock = time.Now
	}
	return &Metrics{
		since:  clock(),
		clock:  clock,
		models: make(map[string]*modelAccumulator),
	}
}

// Record adds one gateway call. Errors carry no tokens or cost.
func (m *Metrics) Record(model string, latency time.Duration, tokens int, costUSD float64, cached bool, failed bool) {
	ms := float64(latency) / float64(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.models[model]
	if !ok {
		acc = &modelAccumulator{samples: make([]float64, 0, 16)}
		m.models[model] = acc
	}

	acc.Calls++
	switch {
	case failed:
		acc.Errors++
	case cached:
		acc.CacheHits++
	default:
		acc.TotalTokens += int64(tokens)
		acc.TotalCostUSD += costUSD
	}

	if acc.Latency.Count == 0 || ms < acc.Latency.MinMs {
		acc.Latency.MinMs = ms
	}
	if ms > acc.Latency.MaxMs {
		acc.Latency.MaxMs = ms
	}
	acc.Latency.Count++
	acc.Latency.SumMs += ms

	if len(acc.samples) < latencyWindow {
		acc.samples = append(acc.samples, ms)
	} else {
		acc.samples[acc.next] = ms
		acc.next = (acc.next + 1) % latencyWindow
	}
}

// Snapshot returns a consistent copy of all counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Since:  m.since,
		Models: make(map[string]ModelMetrics, len(m.models)),
	}

	var all []float64
	for name, acc := range m.models {
		mm := acc.ModelMetrics
		mm.Latency = summarize(mm.Latency, acc.samples)
		snap.Models[name] = mm

		snap.Totals.Calls += mm.Calls
		snap.Totals.CacheHits += mm.CacheHits
		snap.Totals.Errors += mm.Errors
		snap.Totals.TotalTokens += mm.TotalTokens
		snap.Totals.TotalCostUSD += mm.TotalCostUSD
		if mm.Latency.Count > 0 {
			if snap.Totals.Latency.Count == 0 || mm.Latency.MinMs < snap.Totals.Latency.MinMs {
				snap.Totals.Latency.MinMs = mm.Latency.MinMs
			}
			snap.Totals.Latency.MaxMs = math.Max(snap.Totals.Latency.MaxMs, mm.Latency.MaxMs)
		}
		snap.Totals.Latency.Count += mm.Latency.Count
		snap.Totals.Latency.SumMs += mm.Latency.SumMs
		all = append(all, acc.samples...)
	}
	snap.Totals.Latency = summarize(snap.Totals.Latency, all)

	if snap.Totals.Calls > 0 {
		snap.CacheHitRate = float64(snap.Totals.CacheHits) / float64(snap.Totals.Calls)
	}
	return snap
}

// Reset clears all counters
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.models = make(map[string]*modelAccumulator)
	m.since = m.clock()
}

// summarize fills the derived fields from the running sums and a sample window
func summarize(l LatencyStats, samples []float64) LatencyStats {
	if l.Count == 0 {
		return LatencyStats{}
	}
	l.AvgMs = l.SumMs / float64(l.Count)
	if len(samples) == 0 {
		return l
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	l.P50Ms = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	l.P95Ms = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return l
}
