package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("collects providers and settings", func(t *testing.T) {
		answers := strings.Join([]string{
			"not-a-key",       // rejected anthropic key
			"sk-ant-api03-ok", // accepted
			"",                // skip openai
			"",                // skip gemini
			"y",               // bedrock
			"eu-west-1",       // region
			"claude-sonnet",   // default model
			"debug",           // log level
		}, "\n") + "\n"

		var out bytes.Buffer
		cfg, err := NewWizard(strings.NewReader(answers), &out).Run(nil)
		require.NoError(t, err)

		assert.Equal(t, "sk-ant-api03-ok", cfg.Providers.Anthropic.APIKey)
		assert.Empty(t, cfg.Providers.OpenAI.APIKey)
		assert.True(t, cfg.Providers.Bedrock.Enabled)
		assert.Equal(t, "eu-west-1", cfg.Providers.Bedrock.Region)
		assert.Equal(t, "claude-sonnet", cfg.Gateway.DefaultModel)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Error: invalid Anthropic API key format")
		assert.NoError(t, cfg.ValidateGateway())
	})

	t.Run("requires a provider", func(t *testing.T) {
		var out bytes.Buffer
		_, err := NewWizard(strings.NewReader("\n\n\nn\n"), &out).Run(nil)
		assert.EqualError(t, err, "at least one provider is required")
	})

	t.Run("keeps base values on empty answers", func(t *testing.T) {
		base := DefaultConfig()
		base.Gateway.DefaultModel = "gpt-4o"

		var out bytes.Buffer
		cfg, err := NewWizard(strings.NewReader("\nsk-openai-key\n\nn\n\n\n"), &out).Run(base)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", cfg.Gateway.DefaultModel)
		assert.Equal(t, "sk-openai-key", cfg.Providers.OpenAI.APIKey)
		assert.Equal(t, "info", cfg.Logging.Level)
	})
}
