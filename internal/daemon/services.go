package daemon

import (
	"context"
	"fmt"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/pkg/agent"
	"github.com/harun/conduit/pkg/gateway"
	"github.com/harun/conduit/pkg/llm"
	"github.com/harun/conduit/pkg/llmgateway"
	"github.com/harun/conduit/pkg/toolclient"
	"github.com/harun/conduit/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// adapter constructors, replaceable in tests
var (
	newAnthropicAdapter = func(_ context.Context, cfg llm.AnthropicConfig) (llm.Adapter, error) {
		return llm.NewAnthropicAdapter(cfg)
	}
	newOpenAIAdapter = func(_ context.Context, cfg llm.OpenAIConfig) (llm.Adapter, error) {
		return llm.NewOpenAIAdapter(cfg)
	}
	newBedrockAdapter = func(ctx context.Context, cfg llm.BedrockConfig) (llm.Adapter, error) {
		return llm.NewBedrockAdapter(ctx, cfg)
	}
	newGeminiAdapter = func(ctx context.Context, cfg llm.GeminiConfig) (llm.Adapter, error) {
		return llm.NewGeminiAdapter(ctx, cfg)
	}
)

// BuildAdapters creates one adapter per configured provider
func BuildAdapters(ctx context.Context, providers config.ProvidersConfig) ([]llm.Adapter, error) {
	var adapters []llm.Adapter

	if p := providers.Anthropic; p.APIKey != "" {
		a, err := newAnthropicAdapter(ctx, llm.AnthropicConfig{APIKey: p.APIKey, Model: p.Model, BaseURL: p.BaseURL})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if p := providers.OpenAI; p.APIKey != "" {
		a, err := newOpenAIAdapter(ctx, llm.OpenAIConfig{APIKey: p.APIKey, Model: p.Model, OrgID: p.OrgID, BaseURL: p.BaseURL})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if p := providers.Bedrock; p.Enabled || (p.AccessKeyID != "" && p.SecretAccessKey != "") {
		a, err := newBedrockAdapter(ctx, llm.BedrockConfig{
			Region:          p.Region,
			AccessKeyID:     p.AccessKeyID,
			SecretAccessKey: p.SecretAccessKey,
			SessionToken:    p.SessionToken,
			ModelID:         p.ModelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if p := providers.Gemini; p.APIKey != "" {
		a, err := newGeminiAdapter(ctx, llm.GeminiConfig{APIKey: p.APIKey, Model: p.Model})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, &config.ConfigurationError{Field: "providers", Reason: "no model provider configured"}
	}
	return adapters, nil
}

// BuildGateway creates the model gateway over every configured provider
func BuildGateway(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*llmgateway.Gateway, error) {
	adapters, err := BuildAdapters(ctx, cfg.Providers)
	if err != nil {
		return nil, err
	}

	return llmgateway.New(llmgateway.Config{
		DefaultModel:  cfg.Gateway.DefaultModel,
		CacheEnabled:  cfg.Gateway.Cache.Enabled,
		CacheTTL:      cfg.Gateway.Cache.TTL(),
		CacheMaxSize:  cfg.Gateway.Cache.MaxSize,
		SweepSchedule: cfg.Gateway.Cache.SweepSchedule,
		CallTimeout:   cfg.Gateway.Timeout,
	}, logger, adapters...)
}

// BuildToolbox creates a tool executor holding the builtin tools
func BuildToolbox(cfg *config.Config) (*toolexecutor.ToolExecutor, error) {
	exec := toolexecutor.New()
	exec.SetTimeout(cfg.Toolbox.Timeout)
	if err := toolexecutor.RegisterBuiltins(exec); err != nil {
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}
	return exec, nil
}

// AgentStack is everything a turn needs: the runner plus the tool and model sides it talks to
type AgentStack struct {
	Runner *agent.Runner
	Tools  *toolclient.Client
	Models gateway.ModelProvider

	// Gateway is set when generation runs in process
	Gateway *llmgateway.Gateway
	janitor *llmgateway.Janitor
}

// BuildAgent discovers the toolbox and connects to the model gateway.
// With gateway.url set generation goes to that remote gateway, otherwise an in-process one is built.
func BuildAgent(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*AgentStack, error) {
	tools := toolclient.New(cfg.Toolbox.URL, cfg.Toolbox.Timeout, logger)
	specs, err := tools.Discover(ctx)
	if err != nil {
		return nil, &config.ConfigurationError{
			Field:  "toolbox.url",
			Reason: fmt.Sprintf("tool discovery at %s failed: %v", cfg.Toolbox.URL, err),
		}
	}
	logger.Info().Int("tools", len(specs)).Str("url", cfg.Toolbox.URL).Msg("Tools discovered")

	stack := &AgentStack{Tools: tools}

	var generator agent.Generator
	if cfg.Gateway.URL != "" {
		client := llmgateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout)
		generator = client
		stack.Models = client
		logger.Info().Str("url", cfg.Gateway.URL).Msg("Using remote model gateway")
	} else {
		gw, err := BuildGateway(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		janitor, err := gw.Janitor()
		if err != nil {
			return nil, err
		}
		if janitor != nil {
			janitor.Start()
			stack.janitor = janitor
		}
		generator = gw
		stack.Gateway = gw
		stack.Models = gateway.LocalModels(gw)
	}

	runner, err := agent.NewRunner(agent.Config{
		Generator:        generator,
		Tools:            tools,
		Logger:           logger,
		DefaultModel:     cfg.Agent.DefaultModel,
		MaxRounds:        cfg.Agent.MaxRounds,
		TurnTimeout:      cfg.Agent.TurnTimeout,
		MaxParallelTools: cfg.Agent.MaxParallelTools,
		ModelRetries:     cfg.Agent.ModelRetries,
		Temperature:      cfg.Agent.Temperature,
		MaxTokens:        cfg.Agent.MaxTokens,
	})
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.Runner = runner

	return stack, nil
}

// Close stops background work owned by the stack
func (s *AgentStack) Close() {
	if s.janitor != nil {
		s.janitor.Stop()
		s.janitor = nil
	}
}
