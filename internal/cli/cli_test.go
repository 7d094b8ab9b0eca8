package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/pkg/llm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// scriptedAdapter asks for the add tool once, then answers with the tool result
type scriptedAdapter struct {
	name   string
	native bool
}

func (a *scriptedAdapter) Name() string                  { return a.name }
func (a *scriptedAdapter) Provider() string              { return "fake" }
func (a *scriptedAdapter) Description() string           { return "scripted model" }
func (a *scriptedAdapter) NativeTools() bool             { return a.native }
func (a *scriptedAdapter) EstimateCost(_, _ int) float64 { return 0.001 }

func (a *scriptedAdapter) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleTool {
			return &llm.Response{Content: msg.Content, Model: a.name, FinishReason: "stop"}, nil
		}
	}
	return &llm.Response{
		Content:      "TOOL_CALL: add\nARGUMENTS: {\"a\": 2, \"b\": 2}",
		Model:        a.name,
		FinishReason: "stop",
		Usage:        llm.NewUsage(10, 5),
	}, nil
}

// writeConfig saves cfg to a temp file and returns its path
func writeConfig(t *testing.T, mutate func(cfg *config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "conduit.json")
	require.NoError(t, config.NewLoader(path).Save(cfg))
	return path
}

// execute runs the root command with args, resetting flag state afterwards
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(resetFlags)

	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// resetFlags puts every flag of the command tree back to its default.
// cobra keeps parsed values between Execute calls.
func resetFlags() {
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(GetRootCmd())
}
