package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers GET /healthz by pinging the store.
type HealthHandler struct {
	store     Pinger
	timeout   time.Duration
	responder responder
}

func NewHealthHandler(store Pinger, timeout time.Duration, logger *slog.Logger) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{store: store, timeout: timeout, responder: newResponder(defaultLogger(logger))}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
		w.Header().Set("Retry-After", "1")
		h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
