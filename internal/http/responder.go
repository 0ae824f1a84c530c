package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/roombook/internal/application"
)

const maxBodyBytes = 1 << 20

var (
	errBadRequestBody     = errors.New("The request body is not valid JSON.")
	errInvalidReservation = errors.New("A reservation id is required.")
	errInvalidResourceID  = errors.New("A resource id is required.")
	errInvalidUserID      = errors.New("A user id is required.")
	errInvalidTimeRange   = errors.New("start and end must be RFC 3339 timestamps with an offset.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).InfoContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors onto HTTP statuses.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthenticated):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "UNAUTHENTICATED",
			Message:   statusMessage(http.StatusUnauthorized),
		})
	case errors.Is(err, application.ErrInsufficientRole):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "INSUFFICIENT_ROLE",
			Message:   "This operation requires the administrator role.",
		})
	case errors.Is(err, application.ErrNotOwner):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "NOT_OWNER",
			Message:   "Only the owner or an administrator may change this reservation.",
		})
	case errors.Is(err, application.ErrResourceNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "RESOURCE_NOT_FOUND",
			Message:   "The referenced resource does not exist.",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "NOT_FOUND",
			Message:   statusMessage(http.StatusNotFound),
		})
	case errors.Is(err, application.ErrRoomUnavailable):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ROOM_UNAVAILABLE",
			Message:   "The resource is already reserved for part of that interval.",
		})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ALREADY_EXISTS",
			Message:   "A record with the same unique attributes already exists.",
		})
	case errors.Is(err, application.ErrTemporarilyUnavailable):
		w.Header().Set("Retry-After", "1")
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "TEMPORARILY_UNAVAILABLE",
			Message:   statusMessage(http.StatusServiceUnavailable),
		})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				ErrorCode: "VALIDATION_FAILED",
				Message:   statusMessage(http.StatusUnprocessableEntity),
				Errors:    vErr.FieldErrors,
			})
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The request is malformed."
	case http.StatusUnauthorized:
		return "Authentication is required."
	case http.StatusForbidden:
		return "You are not allowed to perform this operation."
	case http.StatusNotFound:
		return "The requested record was not found."
	case http.StatusConflict:
		return "The request conflicts with the current state."
	case http.StatusUnprocessableEntity:
		return "The request contains invalid fields."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Retry shortly."
	default:
		return "An internal error occurred."
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
