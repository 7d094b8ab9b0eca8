package cli

import (
	"fmt"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit - tool-using agent with a multi-provider model gateway",
	Long: `Conduit answers requests with a model/tool loop. The agent asks a model gateway
for completions, runs the tools the model requests against a toolbox service,
and streams progress to HTTP and WebSocket clients.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.conduit/conduit.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file and applies the --log-level override
func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}

// newLogger builds the process logger from the logging section
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	l := cfg.Logging
	log, err := logger.New(logger.Config{
		Level:     l.Level,
		File:      l.File,
		Console:   l.Console,
		Pretty:    l.Pretty,
		Redaction: l.Redaction,
		MaxSize:   l.MaxSize,
		MaxAge:    l.MaxAge,
		Compress:  l.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
