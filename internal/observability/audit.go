package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types
const (
	AuditTurn  = "turn"
	AuditAdmin = "admin"
)

// AuditEvent is one entry in the audit trail
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Subject   string                 `json:"subject,omitempty"` // turn id or admin endpoint
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

var (
	auditMu   sync.RWMutex
	auditInst = NewAuditLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
)

// NewAuditLogger wraps a zerolog logger
func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// GetAuditLogger returns the process audit logger
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// SetAuditLogger replaces the process audit logger
func SetAuditLogger(a *AuditLogger) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditInst = a
}

// InitAuditLogger sends audit events to an append-only file
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	a := NewAuditLogger(zerolog.New(file).With().Timestamp().Logger())
	a.file = file
	SetAuditLogger(a)
	return nil
}

// CloseAuditLogger closes the audit file and returns auditing to stderr
func CloseAuditLogger() error {
	auditMu.Lock()
	prev := auditInst
	auditInst = NewAuditLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
	auditMu.Unlock()
	return prev.Close()
}

// Record writes the event and mirrors it onto the active span
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.subject", event.Subject),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("subject", event.Subject).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	if event.Metadata != nil {
		entry = entry.Interface("metadata", event.Metadata)
	}
	entry.Msg("")
}

// Close closes the audit file if one is open
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// RecordTurnAudit records the outcome of one agent turn
func RecordTurnAudit(ctx context.Context, turnID, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditTurn,
		Subject:  turnID,
		Action:   "turn:complete",
		Status:   status,
		Metadata: metadata,
	})
}

// RecordAdminAudit records an administrative action such as a cache clear
func RecordAdminAudit(ctx context.Context, action, subject string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditAdmin,
		Subject:  subject,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
