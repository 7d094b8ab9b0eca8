package llmgateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/internal/tracing"
	"github.com/harun/conduit/pkg/llm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// Config holds gateway settings
type Config struct {
	DefaultModel  string
	CacheEnabled  bool
	CacheTTL      time.Duration
	CacheMaxSize  int
	SweepSchedule string
	// CallTimeout bounds one shared provider call. Callers still give up on their own context.
	CallTimeout time.Duration
	Clock       Clock
}

// DefaultCallTimeout bounds a shared provider call when Config.CallTimeout is zero
const DefaultCallTimeout = 2 * time.Minute

// DefaultConfig returns the default gateway settings
func DefaultConfig() Config {
	return Config{
		DefaultModel:  "bedrock-nova-pro",
		CacheEnabled:  true,
		CacheTTL:      time.Hour,
		CacheMaxSize:  1000,
		SweepSchedule: "@every 1m",
		CallTimeout:   DefaultCallTimeout,
	}
}

// Gateway routes normalized generation requests to registered adapters,
// caching successful responses and accumulating per-model metrics.
type Gateway struct {
	adapters     map[string]llm.Adapter
	defaultModel string
	schedule     string
	callTimeout  time.Duration
	cache        *Cache
	metrics      *Metrics
	flight       singleflight.Group
	clock        Clock
	logger       zerolog.Logger
}

// flightResult is shared by every caller of one in-flight miss
type flightResult struct {
	resp      *llm.Response
	fromCache bool
}

// New creates a gateway over the given adapters.
// When the configured default model is not registered the first adapter becomes the default.
func New(cfg Config, logger zerolog.Logger, adapters ...llm.Adapter) (*Gateway, error) {
	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	g := &Gateway{
		adapters:    make(map[string]llm.Adapter, len(adapters)),
		schedule:    cfg.SweepSchedule,
		callTimeout: cfg.CallTimeout,
		metrics:     NewMetrics(cfg.Clock),
		clock:       cfg.Clock,
		logger:      logger.With().Str("component", "llmgateway").Logger(),
	}

	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, exists := g.adapters[a.Name()]; exists {
			return nil, fmt.Errorf("adapter %s already registered", a.Name())
		}
		g.adapters[a.Name()] = a
	}
	if len(g.adapters) == 0 {
		return nil, ErrNoAdapters
	}

	g.defaultModel = cfg.DefaultModel
	if _, ok := g.adapters[g.defaultModel]; !ok {
		fallback := g.modelNames()[0]
		g.logger.Warn().
			Str("configured", cfg.DefaultModel).
			Str("default", fallback).
			Msg("Default model not registered, falling back")
		g.defaultModel = fallback
	}

	if cfg.CacheEnabled {
		g.cache = NewCache(cfg.CacheMaxSize, cfg.CacheTTL, cfg.Clock)
	}

	observability.EnsureRegistered()

	g.logger.Info().
		Strs("models", g.modelNames()).
		Str("default_model", g.defaultModel).
		Bool("cache_enabled", cfg.CacheEnabled).
		Msg("Model gateway initialized")

	return g, nil
}

// DefaultModel returns the model used when a request names none
func (g *Gateway) DefaultModel() string {
	return g.defaultModel
}

// Generate serves a request from cache or from the resolved adapter.
// Temperature and max tokens are taken as given; see llm.NewRequest for defaults.
// With caching on, concurrent misses for the same key share one adapter call.
func (g *Gateway) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := g.clock()

	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	adapter, ok := g.adapters[model]
	if !ok {
		return nil, &UnknownModelError{Model: model, Available: g.modelNames()}
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerGateway, "gateway.generate",
		attribute.String("model", model),
		attribute.Int("messages", len(req.Messages)),
		attribute.Int("tools", len(req.Tools)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, g.logger)

	key, err := CacheKey(model, req)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}

	if g.cache == nil {
		resp, err := g.callAdapter(ctx, adapter, model, key, req, logger)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		span.SetAttributes(attribute.Int("tokens", resp.Usage.TotalTokens))
		return resp, nil
	}

	if cached, ok := g.cache.Get(key); ok {
		return g.cacheHit(model, cached, start, logger), nil
	}

	// The shared call is detached from caller cancellation and bounded by callTimeout
	var executed atomic.Bool
	results := g.flight.DoChan(key, func() (interface{}, error) {
		executed.Store(true)
		if cached, ok := g.cache.Get(key); ok {
			return flightResult{resp: cached, fromCache: true}, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.callTimeout)
		defer cancel()
		resp, err := g.callAdapter(callCtx, adapter, model, key, req, logger)
		if err != nil {
			return nil, err
		}
		return flightResult{resp: resp}, nil
	})

	select {
	case <-ctx.Done():
		tracing.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			// followers share the leader's error; only the leader recorded it
			tracing.RecordError(span, res.Err)
			return nil, res.Err
		}
		result := res.Val.(flightResult)
		if result.fromCache || !executed.Load() {
			return g.cacheHit(model, result.resp, start, logger), nil
		}
		span.SetAttributes(attribute.Int("tokens", result.resp.Usage.TotalTokens))
		return result.resp.Clone(), nil
	}
}

// callAdapter performs the provider call, records metrics and caches a success
func (g *Gateway) callAdapter(ctx context.Context, adapter llm.Adapter, model, key string, req llm.Request, logger zerolog.Logger) (*llm.Response, error) {
	if len(req.Tools) > 0 && !adapter.NativeTools() {
		req.Tools = nil
	}

	callStart := g.clock()
	resp, err := adapter.Generate(ctx, req)
	latency := g.clock().Sub(callStart)
	if err == nil && resp == nil {
		err = fmt.Errorf("adapter returned no response")
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug().Str("model", model).Msg("Provider call cancelled")
		return nil, err
	}

	if err != nil {
		g.metrics.Record(model, latency, 0, 0, false, true)
		observability.RecordLLMRequest(model, latency, 0, 0, false)
		logger.Error().
			Err(err).
			Str("model", model).
			Str("provider", adapter.Provider()).
			Dur("latency", latency).
			Msg("Provider call failed")
		return nil, &ProviderError{Model: model, Provider: adapter.Provider(), Err: err}
	}

	if resp.Model == "" {
		resp.Model = model
	}
	resp.Cached = false
	resp.LatencyMs = roundMs(latency)
	resp.EstimatedCostUSD = adapter.EstimateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if g.cache != nil {
		g.cache.Set(key, resp)
	}

	g.metrics.Record(model, latency, resp.Usage.TotalTokens, resp.EstimatedCostUSD, false, false)
	observability.RecordLLMRequest(model, latency, resp.Usage.TotalTokens, resp.EstimatedCostUSD, true)

	logger.Info().
		Str("model", model).
		Str("provider", adapter.Provider()).
		Int("tokens", resp.Usage.TotalTokens).
		Bool("estimated", resp.Usage.Estimated).
		Float64("cost_usd", resp.EstimatedCostUSD).
		Dur("latency", latency).
		Msg("Generation complete")

	return resp, nil
}

func (g *Gateway) cacheHit(model string, resp *llm.Response, start time.Time, logger zerolog.Logger) *llm.Response {
	latency := g.clock().Sub(start)
	out := resp.Clone()
	out.Cached = true
	out.LatencyMs = roundMs(latency)

	g.metrics.Record(model, latency, 0, 0, true, false)
	observability.RecordLLMCacheHit(model)
	logger.Debug().Str("model", model).Msg("Cache hit")
	return out
}

// Models describes every registered adapter, sorted by name
func (g *Gateway) Models() []llm.Info {
	names := g.modelNames()
	infos := make([]llm.Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, llm.Describe(g.adapters[name]))
	}
	return infos
}

// ToolSupport reports whether a model accepts structured tool declarations.
// An empty model resolves to the default.
func (g *Gateway) ToolSupport(ctx context.Context, model string) (bool, error) {
	if model == "" {
		model = g.defaultModel
	}
	adapter, ok := g.adapters[model]
	if !ok {
		return false, &UnknownModelError{Model: model, Available: g.modelNames()}
	}
	return adapter.NativeTools(), nil
}

// Metrics returns a snapshot of the accumulator
func (g *Gateway) Metrics() MetricsSnapshot {
	return g.metrics.Snapshot()
}

// ResetMetrics clears the accumulator. Prometheus counters are not affected.
func (g *Gateway) ResetMetrics() {
	g.metrics.Reset()
	g.logger.Info().Msg("Metrics reset")
}

// ClearCache drops every cached response and returns the count removed
func (g *Gateway) ClearCache() int {
	if g.cache == nil {
		return 0
	}
	n := g.cache.Clear()
	g.logger.Info().Int("entries", n).Msg("Cache cleared")
	return n
}

// CacheStats returns cache counters; Enabled is false when caching is off
func (g *Gateway) CacheStats() CacheStatus {
	if g.cache == nil {
		return CacheStatus{Enabled: false}
	}
	return CacheStatus{Enabled: true, CacheStats: g.cache.Stats()}
}

// CacheStatus wraps CacheStats with the enabled flag
type CacheStatus struct {
	Enabled bool `json:"enabled"`
	CacheStats
}

// Health reports gateway readiness. An in-process gateway is healthy once built.
func (g *Gateway) Health(ctx context.Context) error {
	if len(g.adapters) == 0 {
		return ErrNoAdapters
	}
	return ctx.Err()
}

// Cache exposes the response cache; nil when disabled
func (g *Gateway) Cache() *Cache {
	return g.cache
}

// Janitor builds the cache sweeper on the configured schedule. It is nil when caching is off.
func (g *Gateway) Janitor() (*Janitor, error) {
	if g.cache == nil {
		return nil, nil
	}
	return NewJanitor(g.cache, g.schedule, g.logger)
}

func (g *Gateway) modelNames() []string {
	names := make([]string, 0, len(g.adapters))
	for name := range g.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func roundMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
