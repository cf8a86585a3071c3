package logging

import (
	"context"
	"log/slog"

	"murmur/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldMemoID is the standardized structured logging key for memo identifiers.
	FieldMemoID = "memo_id"
	// FieldOperationID is the standardized structured logging key for coordinator operation identifiers.
	FieldOperationID = "operation_id"
	// FieldOperationType is the standardized structured logging key for operation type names.
	FieldOperationType = "operation_type"
	// FieldJobKind is the standardized structured logging key for background job kinds.
	FieldJobKind = "job_kind"
	// FieldWorker is the standardized structured logging key for worker names.
	FieldWorker = "worker"
	// FieldEventType is the standardized structured logging key for log event classification.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on failures.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.MemoIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMemoID, id))
	}
	if worker, ok := services.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
