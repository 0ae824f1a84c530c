package http

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/roombook/internal/authz"
)

const (
	// HeaderSubjectID carries the caller's identifier from the upstream gateway.
	HeaderSubjectID = "X-Subject-Id"
	// HeaderSubjectRole carries the caller's role (USER or ADMIN).
	HeaderSubjectRole = "X-Subject-Role"
	// HeaderRequestID echoes the request identifier.
	HeaderRequestID = "X-Request-Id"
)

var errInvalidRole = errors.New("unrecognized subject role")

// IdentityResolver turns a request into a subject. A nil subject with a nil
// error means the caller is anonymous.
type IdentityResolver interface {
	Resolve(r *http.Request) (*authz.Subject, error)
}

// HeaderIdentityResolver trusts identity headers set by an authenticating gateway.
type HeaderIdentityResolver struct{}

// Resolve reads X-Subject-Id and X-Subject-Role. A missing id means anonymous;
// a role other than USER or ADMIN is rejected. The role defaults to USER.
func (HeaderIdentityResolver) Resolve(r *http.Request) (*authz.Subject, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderSubjectID))
	if id == "" {
		return nil, nil
	}
	rawRole := strings.TrimSpace(r.Header.Get(HeaderSubjectRole))
	if rawRole == "" {
		return &authz.Subject{ID: id, Role: authz.RoleUser}, nil
	}
	role, ok := authz.ParseRole(rawRole)
	if !ok {
		return nil, errInvalidRole
	}
	return &authz.Subject{ID: id, Role: role}, nil
}

// Identify resolves the caller on every request and stores the subject in the
// request context. Resolution failures are answered with 401.
func Identify(resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)
	if resolver == nil {
		resolver = HeaderIdentityResolver{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := resolver.Resolve(r)
			if err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "identity resolution failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "UNAUTHENTICATED",
					Message:   "The caller identity could not be resolved.",
				})
				return
			}
			ctx := ContextWithSubject(r.Context(), subject)
			if subject != nil {
				if logger := LoggerFromContext(ctx); logger != nil {
					ctx = ContextWithLogger(ctx, logger.With("subject_id", subject.ID, "subject_role", subjectRole(subject)))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// RequestLogger assigns a request id, attaches a request scoped logger and logs
// the start and completion of every request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" {
				id = uuid.NewString()
			}
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithRequestID(ContextWithLogger(r.Context(), logger), id)
			w.Header().Set(HeaderRequestID, id)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}
