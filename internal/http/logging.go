package http

import (
	"context"
	"log/slog"

	"github.com/example/roombook/internal/authz"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"handler", handlerName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if subject := SubjectFromContext(ctx); subject != nil {
		pairs = append(pairs, "subject_id", subject.ID)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

func subjectRole(subject *authz.Subject) string {
	if subject == nil {
		return "anonymous"
	}
	return string(subject.Role)
}
