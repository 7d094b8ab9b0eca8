package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"rounds to seconds", 1500 * time.Millisecond, "2s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func healthServer(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCommand(t *testing.T) {
	toolbox := healthServer(t, http.StatusOK, `{"status":"healthy","tools":7}`)
	gateway := healthServer(t, http.StatusServiceUnavailable, `{"status":"unhealthy"}`)

	var dataDir string
	path := writeConfig(t, func(cfg *config.Config) {
		cfg.Toolbox.URL = toolbox.URL
		cfg.Gateway.URL = gateway.URL
		cfg.Agent.Port = 1
		dataDir = cfg.DataDir
	})

	pidFile := daemon.PIDFilePath(dataDir, "toolbox")
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

	out, err := execute(t, "", "status", "--config", path)
	require.NoError(t, err)

	assert.Regexp(t, `toolbox\s+up\s+`+toolbox.URL, out)
	assert.Regexp(t, `gateway\s+unhealthy\s+`+gateway.URL+`\s+\(HTTP 503\)`, out)
	assert.Regexp(t, `agent\s+down\s+http://localhost:1`, out)
	assert.Contains(t, out, fmt.Sprintf("Local toolbox: running (PID %d, uptime ", os.Getpid()))
}

func TestStatusNoLocalServices(t *testing.T) {
	path := writeConfig(t, func(cfg *config.Config) {
		cfg.Toolbox.URL = "http://127.0.0.1:1"
		cfg.Gateway.URL = "http://127.0.0.1:1"
		cfg.Agent.Port = 1
	})

	out, err := execute(t, "", "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No local services running")
}
