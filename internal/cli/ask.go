package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/harun/conduit/internal/daemon"
	"github.com/harun/conduit/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	askModel string
	askJSON  bool
	askQuiet bool
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Run one turn and print the answer",
	Long: `Run one agent turn against the configured toolbox and model gateway, printing each
step as it happens and the final answer at the end.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askModel, "model", "", "model to use (default: inferred from the text, then the configured default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the turn result as JSON")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "print only the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// logs go to stderr; keep them out of the way of the trace unless asked for
	if logLevel == "" {
		cfg.Logging.Level = "warn"
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := contextOf(cmd)
	stack, err := daemon.BuildAgent(ctx, cfg, log.Zerolog())
	if err != nil {
		return err
	}
	defer stack.Close()

	out := cmd.OutOrStdout()
	var sink agent.Sink
	if !askJSON && !askQuiet {
		sink = traceSink(out)
	}

	result, err := stack.Runner.Run(ctx, agent.TurnRequest{
		Input: strings.Join(args, " "),
		Model: askModel,
	}, sink)
	if err != nil {
		return err
	}

	return printResult(out, result)
}

func printResult(out io.Writer, result *agent.TurnResult) error {
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if !askQuiet {
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, result.FinalAnswer)
	if result.Truncated && !askQuiet {
		fmt.Fprintf(out, "(stopped after %d rounds)\n", result.Rounds)
	}
	return nil
}

// traceSink renders turn events as one line each
func traceSink(out io.Writer) agent.Sink {
	return agent.SinkFunc(func(_ context.Context, ev agent.Event) error {
		switch ev.Type {
		case agent.EventStep:
			fmt.Fprintf(out, "[%d] %s: %s\n", ev.StepNumber, ev.Node, ev.Message)
		case agent.EventToolCall:
			args, _ := json.Marshal(ev.Args)
			fmt.Fprintf(out, "    -> %s %s\n", ev.Tool, args)
		case agent.EventToolResult:
			fmt.Fprintf(out, "    <- %s: %s\n", ev.Tool, ev.Result)
		case agent.EventError:
			fmt.Fprintf(out, "error: %s\n", ev.Message)
		}
		return nil
	})
}
