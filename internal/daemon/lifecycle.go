package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// LifecycleManager owns the PID file of one running service
type LifecycleManager struct {
	pidFile   string
	dataDir   string
	startedAt time.Time
	logger    zerolog.Logger
}

// NewLifecycleManager creates a lifecycle manager for the named service
func NewLifecycleManager(dataDir, name string, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{
		pidFile: PIDFilePath(dataDir, name),
		dataDir: dataDir,
		logger:  logger,
	}
}

// PIDFilePath returns where the named service records its PID
func PIDFilePath(dataDir, name string) string {
	return filepath.Join(dataDir, "conduit-"+name+".pid")
}

// Start refuses to run when another live process owns the PID file, then writes ours
func (l *LifecycleManager) Start() error {
	if err := os.MkdirAll(l.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if pid, err := ReadPID(l.pidFile); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("already running with PID %d (PID file: %s)", pid, l.pidFile)
	}

	if err := os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	l.startedAt = time.Now()

	l.logger.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle manager started")

	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	l.logger.Info().Msg("Lifecycle manager stopped")

	return nil
}

// PIDFile returns the PID file path
func (l *LifecycleManager) PIDFile() string {
	return l.pidFile
}

// Uptime returns time since Start
func (l *LifecycleManager) Uptime() time.Duration {
	if l.startedAt.IsZero() {
		return 0
	}
	return time.Since(l.startedAt)
}

// ReadPID reads the PID stored in pidFile
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}

	return pid, nil
}

// IsRunning reports whether the process named in pidFile is alive
func IsRunning(pidFile string) bool {
	pid, err := ReadPID(pidFile)
	if err != nil {
		return false
	}
	return processAlive(pid)
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
