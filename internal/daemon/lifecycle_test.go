package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleManagerStartStop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	lm := NewLifecycleManager(dir, "agent", zerolog.Nop())
	assert.Equal(t, filepath.Join(dir, "conduit-agent.pid"), lm.PIDFile())

	require.NoError(t, lm.Start())

	pid, err := ReadPID(lm.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, IsRunning(lm.PIDFile()))
	assert.Greater(t, lm.Uptime().Nanoseconds(), int64(-1))

	require.NoError(t, lm.Stop())
	_, err = os.Stat(lm.PIDFile())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, IsRunning(lm.PIDFile()))

	// stopping twice is fine
	assert.NoError(t, lm.Stop())
}

func TestLifecycleManagerRefusesLiveOwner(t *testing.T) {
	dir := t.TempDir()
	lm := NewLifecycleManager(dir, "gateway", zerolog.Nop())

	// the test binary's parent is alive for the duration of the test
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(os.Getppid())), 0644))

	err := lm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestLifecycleManagerReplacesStalePIDFile(t *testing.T) {
	dir := t.TempDir()
	lm := NewLifecycleManager(dir, "toolbox", zerolog.Nop())
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte("not-a-pid"), 0644))

	require.NoError(t, lm.Start())
	pid, err := ReadPID(lm.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	require.NoError(t, lm.Stop())
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	assert.True(t, os.IsNotExist(err))

	path := filepath.Join(dir, "conduit.pid")
	require.NoError(t, os.WriteFile(path, []byte("1234\n"), 0644))
	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))
	_, err = ReadPID(path)
	assert.Error(t, err)
}
