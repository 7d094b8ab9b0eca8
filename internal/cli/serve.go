package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/internal/daemon"
	"github.com/harun/conduit/internal/logger"
	"github.com/spf13/cobra"
)

var withToolbox bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent front end",
	Long: `Start the agent front end: POST /process, the /ws turn stream, /health and /metrics.
Generation runs in process unless gateway.url points at a running model gateway.
Tools are discovered from toolbox.url at startup; serve exits if discovery fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roles := []daemon.Role{daemon.RoleAgent}
		if withToolbox {
			roles = append(roles, daemon.RoleToolbox)
		}
		return runDaemon(cmd, roles...)
	},
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the model gateway service",
	Long: `Start the model gateway: /mcp/llm/generate and /mcp/llm/list over every configured
provider, with the response cache, usage metrics and admin endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, daemon.RoleGateway)
	},
}

var toolboxCmd = &cobra.Command{
	Use:   "toolbox",
	Short: "Start the toolbox service",
	Long:  `Start the toolbox service holding the builtin arithmetic and text tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, daemon.RoleToolbox)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withToolbox, "with-toolbox", false, "also run the toolbox in this process")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(toolboxCmd)
}

// runDaemon runs the given services until SIGINT or SIGTERM
func runDaemon(cmd *cobra.Command, roles ...daemon.Role) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	zl := log.Zerolog()

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg, zl, roles...)
	if err != nil {
		zl.Error().Err(err).Msg("Failed to initialize")
		return err
	}

	if err := loader.Watch(func(next *config.Config) {
		level := next.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		if err := logger.SetLevel(level); err != nil {
			zl.Warn().Err(err).Msg("Ignoring log level from config")
			return
		}
		zl.Info().Str("level", level).Msg("Log level updated")
	}); err != nil {
		zl.Debug().Err(err).Msg("Config watch disabled")
	}

	if err := d.Start(); err != nil {
		return err
	}
	return d.Wait(ctx)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
