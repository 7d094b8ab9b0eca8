package config

import (
	"fmt"
	"time"
)

// Config represents the conduit configuration shared by every service
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent" json:"agent"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Toolbox   ToolboxConfig   `mapstructure:"toolbox" json:"toolbox"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing" json:"tracing"`
	DataDir   string          `mapstructure:"data_dir" json:"data_dir"`
}

// AgentConfig configures the agent front end and its orchestration loop
type AgentConfig struct {
	Host             string        `mapstructure:"host" json:"host"`
	Port             int           `mapstructure:"port" json:"port"`
	DefaultModel     string        `mapstructure:"default_model" json:"default_model"`
	MaxRounds        int           `mapstructure:"max_rounds" json:"max_rounds"`
	TurnTimeout      time.Duration `mapstructure:"turn_timeout" json:"turn_timeout"`
	MaxParallelTools int           `mapstructure:"max_parallel_tools" json:"max_parallel_tools"`
	ModelRetries     int           `mapstructure:"model_retries" json:"model_retries"`
	Temperature      float64       `mapstructure:"temperature" json:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens" json:"max_tokens"`
	TurnsPerMinute   int           `mapstructure:"turns_per_minute" json:"turns_per_minute"`
	ConcurrentTurns  int           `mapstructure:"concurrent_turns" json:"concurrent_turns"`
}

// GatewayConfig configures the model gateway. A non-empty URL makes serve use a remote gateway.
type GatewayConfig struct {
	Host         string        `mapstructure:"host" json:"host"`
	Port         int           `mapstructure:"port" json:"port"`
	URL          string        `mapstructure:"url" json:"url"`
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout"`
	DefaultModel string        `mapstructure:"default_model" json:"default_model"`
	Cache        CacheConfig   `mapstructure:"cache" json:"cache"`
}

// CacheConfig configures the gateway response cache
type CacheConfig struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled"`
	TTLSeconds    int    `mapstructure:"ttl_seconds" json:"ttl_seconds"`
	MaxSize       int    `mapstructure:"max_size" json:"max_size"`
	SweepSchedule string `mapstructure:"sweep_schedule" json:"sweep_schedule"`
}

// TTL returns the cache entry lifetime
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ToolboxConfig configures the tool provider service and the client that reaches it
type ToolboxConfig struct {
	Host    string        `mapstructure:"host" json:"host"`
	Port    int           `mapstructure:"port" json:"port"`
	URL     string        `mapstructure:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// ProvidersConfig holds credentials for every model backend
type ProvidersConfig struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic" json:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" json:"openai"`
	Bedrock   BedrockConfig   `mapstructure:"bedrock" json:"bedrock"`
	Gemini    GeminiConfig    `mapstructure:"gemini" json:"gemini"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	Model   string `mapstructure:"model" json:"model"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	Model   string `mapstructure:"model" json:"model"`
	OrgID   string `mapstructure:"org_id" json:"org_id"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// BedrockConfig uses the default AWS credential chain when Enabled is set without static keys
type BedrockConfig struct {
	Enabled         bool   `mapstructure:"enabled" json:"enabled"`
	Region          string `mapstructure:"region" json:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" json:"session_token"`
	ModelID         string `mapstructure:"model_id" json:"model_id"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key" json:"api_key"`
	Model  string `mapstructure:"model" json:"model"`
}

// LoggingConfig mirrors logger.Config
type LoggingConfig struct {
	Level     string `mapstructure:"level" json:"level"`
	File      string `mapstructure:"file" json:"file"`
	Console   bool   `mapstructure:"console" json:"console"`
	Pretty    bool   `mapstructure:"pretty" json:"pretty"`
	Redaction bool   `mapstructure:"redaction" json:"redaction"`
	MaxSize   int    `mapstructure:"max_size" json:"max_size"`
	MaxAge    int    `mapstructure:"max_age" json:"max_age"`
	Compress  bool   `mapstructure:"compress" json:"compress"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled" json:"enabled"`
	ServiceName    string  `mapstructure:"service_name" json:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" json:"service_version"`
	SampleRatio    float64 `mapstructure:"sample_ratio" json:"sample_ratio"`
}

// ConfigurationError reports an invalid or missing setting
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			MaxRounds:        8,
			TurnTimeout:      120 * time.Second,
			MaxParallelTools: 4,
			ModelRetries:     0,
			Temperature:      0.7,
			MaxTokens:        2000,
			TurnsPerMinute:   30,
			ConcurrentTurns:  2,
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         8003,
			Timeout:      120 * time.Second,
			DefaultModel: "bedrock-nova-pro",
			Cache: CacheConfig{
				Enabled:       true,
				TTLSeconds:    3600,
				MaxSize:       1000,
				SweepSchedule: "@every 1m",
			},
		},
		Toolbox: ToolboxConfig{
			Host:    "0.0.0.0",
			Port:    8002,
			URL:     "http://localhost:8002",
			Timeout: 30 * time.Second,
		},
		Providers: ProvidersConfig{
			Bedrock: BedrockConfig{Region: "us-east-1"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
		},
		Tracing: TracingConfig{
			ServiceName: "conduit",
			SampleRatio: 1,
		},
	}
}

// Configured returns the names of providers that have credentials
func (p ProvidersConfig) Configured() []string {
	var names []string
	if p.Anthropic.APIKey != "" {
		names = append(names, "anthropic")
	}
	if p.OpenAI.APIKey != "" {
		names = append(names, "openai")
	}
	if p.Bedrock.Enabled || (p.Bedrock.AccessKeyID != "" && p.Bedrock.SecretAccessKey != "") {
		names = append(names, "bedrock")
	}
	if p.Gemini.APIKey != "" {
		names = append(names, "gemini")
	}
	return names
}

// Validate checks the settings every service depends on
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateGateway additionally requires a model provider, which serving generation needs
func (c *Config) ValidateGateway() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Providers.Configured()) == 0 {
		return &ConfigurationError{
			Field:  "providers",
			Reason: "at least one provider (anthropic, openai, bedrock, gemini) must be configured",
		}
	}
	return nil
}
