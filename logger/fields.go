package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across rpawatch.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldJobID        = "job_id"
	FieldExecutionID  = "execution_id"
	FieldLogID        = "log_id"
	FieldRCAID        = "rca_id"
	FieldToken        = "token"
	FieldActor        = "actor"
	FieldInvocationID = "invocation_id"

	// Components
	FieldComponent = "component"

	// Feed
	FieldTarget      = "target"
	FieldMessageType = "message_type"
	FieldAttempt     = "attempt"
	FieldBackoff     = "backoff"
	FieldURL         = "url"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldInterval   = "interval"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Mail
	FieldSubject   = "subject"
	FieldRecipient = "recipient"

	// Remediation
	FieldProcess = "process"
	FieldRobot   = "robot"
)

type contextKey string

const (
	jobIDKey       contextKey = "logger_job_id"
	executionIDKey contextKey = "logger_execution_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithExecutionID adds an execution ID to the context for logging
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if executionID, ok := ctx.Value(executionIDKey).(string); ok && executionID != "" {
		fields = append(fields, FieldExecutionID, executionID)
	}

	return fields
}

// FromContext returns base with fields extracted from ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Scanner struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewScanner() *Scanner {
//	    return &Scanner{
//	        logger: logger.ComponentLogger("scanner"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
//	jobLogger := logger.ChildLogger(baseLogger, "job_id", job.ID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
