package store

import (
	"context"
	"log/slog"
	"time"

	"tabala/pkg/domain"
)

// Logger receives structured log events from the coordinator. The
// default is a no-op; wire a real sink with WithLogger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	L *slog.Logger
}

func (s SlogLogger) Debug(msg string, args ...any) { s.L.Debug(msg, args...) }
func (s SlogLogger) Info(msg string, args ...any)  { s.L.Info(msg, args...) }
func (s SlogLogger) Warn(msg string, args ...any)  { s.L.Warn(msg, args...) }
func (s SlogLogger) Error(msg string, args ...any) { s.L.Error(msg, args...) }

// MetricsRecorder observes per-operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer opens a span per coordinator operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span, recording the operation error if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus labels an audit entry outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one mutation for audit sinks.
type AuditEntry struct {
	Operation string
	Status    AuditStatus
	Entity    domain.EntityType
	EntityID  string
	Action    domain.Action
	Error     string
	At        time.Time
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// instrument opens a span and returns the closure that finishes it,
// feeding the metrics recorder and audit sink.
func (s *Store) instrument(ctx context.Context, op string, entity domain.EntityType, action domain.Action) (context.Context, func(entityID string, err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	return ctx, func(entityID string, err error) {
		span.End(err)
		s.metrics.Observe(ctx, op, err == nil, time.Since(start))
		entry := AuditEntry{
			Operation: op,
			Status:    AuditStatusSuccess,
			Entity:    entity,
			EntityID:  entityID,
			Action:    action,
			At:        time.Now().UTC(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
			s.logger.Warn("operation failed", "op", op, "error", err)
		} else {
			s.logger.Debug("operation completed", "op", op, "entity_id", entityID)
		}
		s.audit.Record(ctx, entry)
	}
}
