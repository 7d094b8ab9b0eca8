package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	llmRequestsTotal   *prometheus.CounterVec
	llmCacheHitsTotal  *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensTotal     *prometheus.CounterVec
	llmCostTotal       *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	agentTurnTotal    *prometheus.CounterVec
	agentTurnDuration prometheus.Histogram
	agentTurnRounds   prometheus.Histogram

	wsClientsActive prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			llmRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_requests_total",
					Help: "Total generation requests by model and status.",
				},
				[]string{"model", "status"},
			),
			llmCacheHitsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_cache_hits_total",
					Help: "Total generation requests served from cache by model.",
				},
				[]string{"model"},
			),
			llmRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_request_duration_seconds",
					Help:    "Provider call duration in seconds by model.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model"},
			),
			llmTokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_tokens_total",
					Help: "Total tokens consumed by model.",
				},
				[]string{"model"},
			),
			llmCostTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_cost_usd_total",
					Help: "Estimated provider cost in USD by model.",
				},
				[]string{"model"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			agentTurnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_turn_total",
					Help: "Total agent turns by status.",
				},
				[]string{"status"},
			),
			agentTurnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_turn_duration_seconds",
					Help:    "Agent turn duration in seconds.",
					Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
				},
			),
			agentTurnRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_turn_rounds",
					Help:    "Tool rounds per agent turn.",
					Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12},
				},
			),
			wsClientsActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "ws_clients_active",
					Help: "Currently connected WebSocket clients.",
				},
			),
		}

		prometheus.MustRegister(
			m.llmRequestsTotal,
			m.llmCacheHitsTotal,
			m.llmRequestDuration,
			m.llmTokensTotal,
			m.llmCostTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.agentTurnTotal,
			m.agentTurnDuration,
			m.agentTurnRounds,
			m.wsClientsActive,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordLLMRequest records one provider call
func RecordLLMRequest(model string, duration time.Duration, tokens int, costUSD float64, success bool) {
	m := getMetrics()
	m.llmRequestsTotal.WithLabelValues(model, statusLabel(success)).Inc()
	m.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	if success {
		m.llmTokensTotal.WithLabelValues(model).Add(float64(tokens))
		m.llmCostTotal.WithLabelValues(model).Add(costUSD)
	}
}

// RecordLLMCacheHit records a request served from cache
func RecordLLMCacheHit(model string) {
	m := getMetrics()
	m.llmRequestsTotal.WithLabelValues(model, "cached").Inc()
	m.llmCacheHitsTotal.WithLabelValues(model).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordAgentTurn records a finished turn. Status is success, truncated or error.
func RecordAgentTurn(status string, duration time.Duration, rounds int) {
	m := getMetrics()
	m.agentTurnTotal.WithLabelValues(status).Inc()
	m.agentTurnDuration.Observe(duration.Seconds())
	m.agentTurnRounds.Observe(float64(rounds))
}

func SetWSClients(count int) {
	m := getMetrics()
	m.wsClientsActive.Set(float64(count))
}
