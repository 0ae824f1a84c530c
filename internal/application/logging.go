package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/roombook/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// logFailure records a failed operation. Expected business outcomes stay
// below ERROR so that conflicts and denials do not page anyone.
func logFailure(ctx context.Context, logger *slog.Logger, msg string, err error) {
	kind := ErrorKind(err)
	level := slog.LevelError
	switch kind {
	case "room_unavailable", "not_found", "resource_not_found", "validation", "already_exists":
		level = slog.LevelInfo
	case "unauthenticated", "insufficient_role", "not_owner":
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, msg, "error", err, "error_kind", kind)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInsufficientRole):
		return "insufficient_role"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrResourceNotFound):
		return "resource_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, ErrTemporarilyUnavailable):
		return "temporarily_unavailable"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
