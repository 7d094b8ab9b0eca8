package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const fieldsKey ctxKey = iota

// Fields are the correlation ids carried through a request
type Fields struct {
	TraceID   string
	TurnID    string
	ClientID  string
	RequestID string
}

// merge overlays the non-empty ids of other onto f
func (f Fields) merge(other Fields) Fields {
	if other.TraceID != "" {
		f.TraceID = other.TraceID
	}
	if other.TurnID != "" {
		f.TurnID = other.TurnID
	}
	if other.ClientID != "" {
		f.ClientID = other.ClientID
	}
	if other.RequestID != "" {
		f.RequestID = other.RequestID
	}
	return f
}

// With returns ctx carrying the non-empty ids of f on top of those already present
func With(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, fieldsKey, FieldsFrom(ctx).merge(f))
}

// FieldsFrom returns the ids carried by ctx
func FieldsFrom(ctx context.Context) Fields {
	f, _ := ctx.Value(fieldsKey).(Fields)
	return f
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return With(ctx, Fields{TraceID: id})
}

func WithClientID(ctx context.Context, id string) context.Context {
	return With(ctx, Fields{ClientID: id})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return With(ctx, Fields{RequestID: id})
}

func GetTraceID(ctx context.Context) string {
	return FieldsFrom(ctx).TraceID
}

func GetTurnID(ctx context.Context) string {
	return FieldsFrom(ctx).TurnID
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.NewString()
}

// NewTurnContext assigns a fresh turn ID, and a trace ID when none is present
func NewTurnContext(ctx context.Context) (context.Context, string) {
	f := Fields{TurnID: uuid.NewString()}
	if GetTraceID(ctx) == "" {
		f.TraceID = NewTraceID()
	}
	return With(ctx, f), f.TurnID
}

// LoggerFromContext returns base enriched with the ids carried by ctx. Empty ids are omitted.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	f := FieldsFrom(ctx)
	lc := base.With()
	for _, kv := range [...]struct{ key, val string }{
		{"trace_id", f.TraceID},
		{"turn_id", f.TurnID},
		{"client_id", f.ClientID},
		{"request_id", f.RequestID},
	} {
		if kv.val != "" {
			lc = lc.Str(kv.key, kv.val)
		}
	}
	return lc.Logger()
}
