package http

import (
	"context"
	"log/slog"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/logging"
)

type contextKey string

const (
	subjectContextKey   contextKey = "subject"
	requestIDContextKey contextKey = "request_id"
)

// ContextWithSubject returns a derived context carrying the resolved identity.
func ContextWithSubject(ctx context.Context, subject *authz.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// SubjectFromContext returns the resolved identity, or nil for anonymous callers.
func SubjectFromContext(ctx context.Context) *authz.Subject {
	subject, _ := ctx.Value(subjectContextKey).(*authz.Subject)
	return subject
}

// ContextWithRequestID attaches the request identifier.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request identifier if one was assigned.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
