package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/internal/tracing"
	"github.com/harun/conduit/pkg/llm"
	"github.com/harun/conduit/pkg/llmgateway"
	"github.com/harun/conduit/pkg/toolclient"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptyInput is returned for a turn with no user input
var ErrEmptyInput = errors.New("input is required")

// Generator produces model replies. Satisfied by *llmgateway.Gateway and *llmgateway.Client.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
	ToolSupport(ctx context.Context, model string) (bool, error)
}

// ToolInvoker lists and invokes tools. Satisfied by *toolclient.Client.
type ToolInvoker interface {
	Tools() []llm.ToolSpec
	Invoke(ctx context.Context, name string, args map[string]interface{}) toolclient.Outcome
}

// Config holds runner configuration
type Config struct {
	Generator Generator
	Tools     ToolInvoker
	Logger    zerolog.Logger

	// DefaultModel is used when neither the request nor its wording names a model.
	// Empty defers to the gateway default.
	DefaultModel string

	MaxRounds            int
	TurnTimeout          time.Duration
	MaxParallelTools     int
	ModelRetries         int
	RetryInitialInterval time.Duration
	Temperature          float64
	MaxTokens            int
}

// Runner drives turns through the model/tool loop
type Runner struct {
	generator Generator
	tools     ToolInvoker
	logger    zerolog.Logger
	cfg       Config

	// Active turns for abort capability
	activeTurns map[string]context.CancelFunc
	turnsMu     sync.RWMutex
}

// NewRunner creates a runner, filling zero limits with defaults
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool invoker is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.DefaultMaxTokens
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = DefaultMaxParallelTools
	}
	if cfg.ModelRetries < 0 {
		cfg.ModelRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultRetryInterval
	}

	return &Runner{
		generator:   cfg.Generator,
		tools:       cfg.Tools,
		logger:      cfg.Logger,
		cfg:         cfg,
		activeTurns: make(map[string]context.CancelFunc),
	}, nil
}

// Run executes one turn. Events go to sink, which may be nil.
// On a fatal error the partial result is returned alongside the error.
func (r *Runner) Run(ctx context.Context, req TurnRequest, sink Sink) (*TurnResult, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, ErrEmptyInput
	}

	ctx, turnID := tracing.NewTurnContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TurnTimeout)
	defer cancel()

	r.turnsMu.Lock()
	r.activeTurns[turnID] = cancel
	r.turnsMu.Unlock()
	defer func() {
		r.turnsMu.Lock()
		delete(r.activeTurns, turnID)
		r.turnsMu.Unlock()
	}()

	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.turn",
		attribute.String("turn_id", turnID),
		attribute.String("model", req.Model),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, r.logger)
	events := newGuardedSink(sink, logger)
	start := time.Now()

	events.send(ctx, Event{Type: EventStart, TurnID: turnID, Message: "Processing your request..."})

	model := req.Model
	if model == "" {
		model = InferModel(req.Input)
	}
	if model == "" {
		model = r.cfg.DefaultModel
	}
	turn := NewTurn(turnID, req.Input, model)
	r.record(ctx, turn, events, StepRecord{
		Node:          NodeProcessInput,
		Input:         req.Input,
		ModelSelected: model,
	})

	logger.Info().Str("model", model).Msg("Turn started")

	if err := r.loop(ctx, turn, events, logger); err != nil {
		tracing.RecordError(span, err)
		events.send(ctx, Event{Type: EventError, TurnID: turnID, Message: err.Error()})
		observability.RecordAgentTurn("error", time.Since(start), turn.Rounds())
		observability.RecordTurnAudit(ctx, turnID, "error", map[string]interface{}{
			"error":  err.Error(),
			"rounds": turn.Rounds(),
		})
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Turn failed")
		return turn.Result(), err
	}

	result := turn.Result()
	events.send(ctx, Event{Type: EventResponse, TurnID: turnID, Content: result.FinalAnswer})
	events.send(ctx, Event{Type: EventComplete, TurnID: turnID, StepCount: len(result.Steps)})

	status := "success"
	if result.Truncated {
		status = "truncated"
	}
	observability.RecordAgentTurn(status, time.Since(start), result.Rounds)
	observability.RecordTurnAudit(ctx, turnID, status, map[string]interface{}{
		"rounds": result.Rounds,
		"steps":  len(result.Steps),
		"model":  model,
	})

	logger.Info().
		Str("status", status).
		Int("rounds", result.Rounds).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")

	return result, nil
}

// loop alternates model calls and tool rounds until a final answer is set
func (r *Runner) loop(ctx context.Context, turn *Turn, events *guardedSink, logger zerolog.Logger) error {
	native, err := r.generator.ToolSupport(ctx, turn.ModelOverride)
	if err != nil {
		return fmt.Errorf("failed to resolve model: %w", err)
	}
	tools := r.tools.Tools()

	for {
		resp, attempts, err := r.callModel(ctx, turn, tools, native, logger)
		if err != nil {
			return err
		}

		var requests []llm.ToolRequest
		if native {
			requests = ensureCallIDs(resp.ToolRequests)
		} else {
			requests = ParseToolCalls(resp.Content)
		}

		turn.Append(llm.Message{
			Role:         llm.RoleAssistant,
			Content:      resp.Content,
			ToolRequests: requests,
		})

		step := StepRecord{
			Model:        resp.Model,
			Cached:       resp.Cached,
			LatencyMs:    resp.LatencyMs,
			HasToolCalls: len(requests) > 0,
			Attempts:     attempts,
		}

		if len(requests) == 0 {
			step.Node = NodeFinalAnswer
			turn.Finish(resp.Content, false)
			r.record(ctx, turn, events, step)
			return nil
		}

		step.Node = NodeLLM
		r.record(ctx, turn, events, step)

		if turn.Rounds() >= r.cfg.MaxRounds {
			answer, _ := turn.LastAssistant()
			turn.Finish(answer, true)
			r.record(ctx, turn, events, StepRecord{Node: NodeFinalAnswer, Truncated: true})
			logger.Warn().Int("max_rounds", r.cfg.MaxRounds).Msg("Round cap reached, finalizing turn")
			return nil
		}

		r.executeTools(ctx, turn, events, requests)
		turn.nextRound()
	}
}

// callModel issues one generation request with the full history
func (r *Runner) callModel(ctx context.Context, turn *Turn, tools []llm.ToolSpec, native bool, logger zerolog.Logger) (*llm.Response, int, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.call_model",
		attribute.String("model", turn.ModelOverride),
		attribute.Bool("native_tools", native),
	)
	defer span.End()

	req := llm.Request{
		Model:       turn.ModelOverride,
		Messages:    turn.Messages(),
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	}
	if len(tools) > 0 {
		if native {
			req.Tools = tools
		} else {
			system := llm.Message{Role: llm.RoleSystem, Content: toolclient.TextPrompt(tools)}
			req.Messages = append([]llm.Message{system}, req.Messages...)
		}
	}

	resp, attempts, err := r.generate(ctx, req, logger)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, attempts, fmt.Errorf("model call failed: %w", err)
	}
	span.SetAttributes(
		attribute.String("model_used", resp.Model),
		attribute.Bool("cached", resp.Cached),
		attribute.Int("attempts", attempts),
	)
	return resp, attempts, nil
}

// generate retries provider failures with exponential backoff. Other errors are permanent.
func (r *Runner) generate(ctx context.Context, req llm.Request, logger zerolog.Logger) (*llm.Response, int, error) {
	attempts := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.RetryInitialInterval

	resp, err := backoff.Retry(ctx, func() (*llm.Response, error) {
		attempts++
		resp, err := r.generator.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, llmgateway.ErrUnknownModel) || !llmgateway.IsProviderError(err) {
			return nil, backoff.Permanent(err)
		}
		logger.Warn().Err(err).Int("attempt", attempts).Msg("Model call failed")
		return nil, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(r.cfg.ModelRetries+1)),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return resp, attempts, err
}

// executeTools invokes every request concurrently and appends the results in request order
func (r *Runner) executeTools(ctx context.Context, turn *Turn, events *guardedSink, requests []llm.ToolRequest) {
	for _, req := range requests {
		events.send(ctx, Event{Type: EventToolCall, TurnID: turn.ID, Tool: req.Name, Args: req.Arguments})
	}

	mapper := iter.Mapper[llm.ToolRequest, toolclient.Outcome]{MaxGoroutines: r.cfg.MaxParallelTools}
	outcomes := mapper.Map(requests, func(req *llm.ToolRequest) toolclient.Outcome {
		return r.tools.Invoke(ctx, req.Name, req.Arguments)
	})

	messages := make([]llm.Message, 0, len(requests))
	executions := make([]ToolExecution, 0, len(requests))
	for i, req := range requests {
		outcome := outcomes[i]
		content := outcome.Content()

		events.send(ctx, Event{Type: EventToolResult, TurnID: turn.ID, Tool: req.Name, Result: content})

		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: req.ID,
			Name:       req.Name,
		})

		exec := ToolExecution{Name: req.Name, CallID: req.ID, Args: req.Arguments}
		if outcome.OK() {
			exec.Result = outcome.Text
		} else {
			exec.Error = content
		}
		executions = append(executions, exec)
	}

	turn.Append(messages...)
	r.record(ctx, turn, events, StepRecord{Node: NodeToolExecution, Tools: executions})
}

var stepMessages = map[string]string{
	NodeProcessInput:  "Processing input...",
	NodeLLM:           "Calling language model...",
	NodeToolExecution: "Executing tools...",
	NodeFinalAnswer:   "Generating final answer...",
}

// record appends a step to the trace and announces it
func (r *Runner) record(ctx context.Context, turn *Turn, events *guardedSink, step StepRecord) {
	step.Timestamp = time.Now().UTC()
	n := turn.Record(step)
	events.send(ctx, Event{
		Type:       EventStep,
		TurnID:     turn.ID,
		Node:       step.Node,
		Message:    stepMessages[step.Node],
		StepNumber: n,
	})
}

// Abort cancels a running turn
func (r *Runner) Abort(turnID string) bool {
	r.turnsMu.Lock()
	defer r.turnsMu.Unlock()

	cancel, exists := r.activeTurns[turnID]
	if !exists {
		r.logger.Debug().Str("turn_id", turnID).Msg("No active turn to abort")
		return false
	}

	r.logger.Info().Str("turn_id", turnID).Msg("Aborting turn")
	cancel()
	delete(r.activeTurns, turnID)
	return true
}

// AbortAll cancels every running turn and returns how many were cancelled
func (r *Runner) AbortAll() int {
	r.turnsMu.Lock()
	defer r.turnsMu.Unlock()

	n := len(r.activeTurns)
	for id, cancel := range r.activeTurns {
		cancel()
		delete(r.activeTurns, id)
	}
	return n
}

// IsRunning checks if a turn is in progress
func (r *Runner) IsRunning(turnID string) bool {
	r.turnsMu.RLock()
	defer r.turnsMu.RUnlock()

	_, exists := r.activeTurns[turnID]
	return exists
}

// ActiveTurns reports how many turns are in progress
func (r *Runner) ActiveTurns() int {
	r.turnsMu.RLock()
	defer r.turnsMu.RUnlock()
	return len(r.activeTurns)
}
