package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := execute(t, "", "--version")
		require.NoError(t, err)
		assert.Equal(t, "conduit version "+GetVersion()+"\n", out)
	})

	t.Run("help flag", func(t *testing.T) {
		out, err := execute(t, "", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "Conduit answers requests")
		for _, name := range []string{"serve", "gateway", "toolbox", "ask", "models", "metrics", "cache", "status", "stop", "configure"} {
			assert.Contains(t, out, name)
		}
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "", logLevelFlag.DefValue)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Cleanup(resetFlags)

	t.Run("log level override", func(t *testing.T) {
		cfgFile = writeConfig(t, nil)
		logLevel = "debug"

		_, cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("invalid override", func(t *testing.T) {
		cfgFile = writeConfig(t, nil)
		logLevel = "verbose"

		_, _, err := loadConfig()
		assert.Error(t, err)
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
