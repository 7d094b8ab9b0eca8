package agent

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event types streamed while a turn runs
const (
	EventStart      = "start"
	EventStep       = "step"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventResponse   = "response"
	EventComplete   = "complete"
	EventError      = "error"
)

// Event is one progress notification of a turn
type Event struct {
	Type       string                 `json:"type"`
	TurnID     string                 `json:"turn_id,omitempty"`
	Node       string                 `json:"node,omitempty"`
	Message    string                 `json:"message,omitempty"`
	StepNumber int                    `json:"step_number,omitempty"`
	Tool       string                 `json:"tool,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Result     string                 `json:"result,omitempty"`
	Content    string                 `json:"content,omitempty"`
	StepCount  int                    `json:"step_count,omitempty"`
}

// Sink receives turn events. A sink that also implements Closed() bool
// is checked before every send.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Send(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type closer interface {
	Closed() bool
}

// guardedSink stops delivering after the first failed send or once the sink reports closed
type guardedSink struct {
	sink   Sink
	logger zerolog.Logger

	mu   sync.Mutex
	dead bool
}

func newGuardedSink(sink Sink, logger zerolog.Logger) *guardedSink {
	return &guardedSink{sink: sink, logger: logger, dead: sink == nil}
}

func (g *guardedSink) send(ctx context.Context, event Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dead {
		return
	}
	if c, ok := g.sink.(closer); ok && c.Closed() {
		g.dead = true
		g.logger.Debug().Str("event", event.Type).Msg("Event sink closed, dropping further events")
		return
	}
	if err := g.sink.Send(ctx, event); err != nil {
		g.dead = true
		g.logger.Debug().Err(err).Str("event", event.Type).Msg("Event delivery failed, dropping further events")
	}
}
