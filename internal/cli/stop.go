package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/conduit/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop <agent|gateway|toolbox|agent+toolbox>",
	Short: "Stop a running conduit service",
	Long: `Stop a conduit service started on this machine.
Sends SIGTERM to the process named in its PID file and waits for it to exit,
then falls back to SIGKILL once the timeout passes.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"agent", "gateway", "toolbox", "agent+toolbox"},
	RunE:      runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the service to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	name := args[0]
	pidFile := daemon.PIDFilePath(cfg.DataDir, name)

	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s is not running (no PID file at %s)", name, pidFile)
		}
		return err
	}
	if !daemon.IsRunning(pidFile) {
		os.Remove(pidFile)
		return fmt.Errorf("%s is not running (removed stale PID file)", name)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}
	fmt.Fprintf(out, "Stopping %s (PID %d)...\n", name, pid)

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.IsRunning(pidFile) {
			os.Remove(pidFile)
			fmt.Fprintf(out, "%s stopped\n", name)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	os.Remove(pidFile)
	fmt.Fprintf(out, "%s killed\n", name)
	return nil
}
