package cli

import (
	"strings"
	"testing"

	"github.com/harun/conduit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("saves wizard answers", func(t *testing.T) {
		path := writeConfig(t, func(cfg *config.Config) { cfg.Agent.Port = 9100 })
		// anthropic, openai, gemini, bedrock, default model, log level
		answers := strings.Join([]string{
			"sk-ant-REDACTED",
			"",
			"",
			"n",
			"claude-3-5-sonnet",
			"debug",
		}, "\n") + "\n"

		out, err := execute(t, answers, "configure", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration saved to: "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-REDACTED", cfg.Providers.Anthropic.APIKey)
		assert.Equal(t, "claude-3-5-sonnet", cfg.Gateway.DefaultModel)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 9100, cfg.Agent.Port, "existing settings are kept")
	})

	t.Run("no provider", func(t *testing.T) {
		path := writeConfig(t, nil)
		_, err := execute(t, "\n\n\nn\n", "configure", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one provider is required")
	})
}
