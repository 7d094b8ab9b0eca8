package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey checks the key prefix each provider issues
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidatePort validates a listen port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron spec such as "@every 1m"
func (v *Validator) ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig collects every problem in cfg
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, &ConfigurationError{Field: field, Reason: err.Error()})
		}
	}

	add("agent.port", v.ValidatePort(cfg.Agent.Port))
	add("gateway.port", v.ValidatePort(cfg.Gateway.Port))
	add("toolbox.port", v.ValidatePort(cfg.Toolbox.Port))

	if cfg.Agent.MaxRounds < 1 {
		add("agent.max_rounds", fmt.Errorf("must be at least 1, got %d", cfg.Agent.MaxRounds))
	}
	if cfg.Agent.TurnTimeout <= 0 {
		add("agent.turn_timeout", fmt.Errorf("must be positive"))
	}
	if cfg.Agent.MaxParallelTools < 1 {
		add("agent.max_parallel_tools", fmt.Errorf("must be at least 1, got %d", cfg.Agent.MaxParallelTools))
	}
	if cfg.Agent.ModelRetries < 0 {
		add("agent.model_retries", fmt.Errorf("must be >= 0"))
	}
	add("agent.temperature", v.ValidateTemperature(cfg.Agent.Temperature))
	add("agent.max_tokens", v.ValidateMaxTokens(cfg.Agent.MaxTokens))

	if strings.TrimSpace(cfg.Toolbox.URL) == "" {
		add("toolbox.url", fmt.Errorf("toolbox url is required"))
	}
	if cfg.Toolbox.Timeout <= 0 {
		add("toolbox.timeout", fmt.Errorf("must be positive"))
	}

	if cfg.Gateway.Cache.TTLSeconds < 0 {
		add("gateway.cache.ttl_seconds", fmt.Errorf("must be >= 0"))
	}
	if cfg.Gateway.Cache.MaxSize < 0 {
		add("gateway.cache.max_size", fmt.Errorf("must be >= 0"))
	}
	if cfg.Gateway.Cache.Enabled {
		add("gateway.cache.sweep_schedule", v.ValidateSchedule(cfg.Gateway.Cache.SweepSchedule))
	}

	p := cfg.Providers
	if p.Anthropic.APIKey != "" {
		add("providers.anthropic.api_key", v.ValidateAPIKey(p.Anthropic.APIKey, "anthropic"))
	}
	if p.OpenAI.APIKey != "" {
		add("providers.openai.api_key", v.ValidateAPIKey(p.OpenAI.APIKey, "openai"))
	}
	if p.Gemini.APIKey != "" {
		add("providers.gemini.api_key", v.ValidateAPIKey(p.Gemini.APIKey, "gemini"))
	}
	if (p.Bedrock.AccessKeyID == "") != (p.Bedrock.SecretAccessKey == "") {
		add("providers.bedrock", fmt.Errorf("access_key_id and secret_access_key must be set together"))
	}

	add("logging.level", v.ValidateLogLevel(cfg.Logging.Level))

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio", fmt.Errorf("must be between 0 and 1, got %g", cfg.Tracing.SampleRatio))
	}

	return errs
}
