package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/roombook/internal/application"
	"github.com/example/roombook/internal/authz"
)

type userService interface {
	ListUsers(ctx context.Context, subject *authz.Subject) ([]application.User, error)
	DeleteUser(ctx context.Context, subject *authz.Subject, userID string) error
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), SubjectFromContext(r.Context()))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listUsersResponse{Users: toUserDTOs(users)})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request, userID string) {
	if strings.TrimSpace(userID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return
	}
	if err := h.service.DeleteUser(r.Context(), SubjectFromContext(r.Context()), userID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "UserHandler", "Delete", "user_id", userID).InfoContext(r.Context(), "user deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type listUsersResponse struct {
	Users []userDTO `json:"users"`
}

type userDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

func toUserDTOs(users []application.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Role:        u.Role,
			CreatedAt:   formatTime(u.CreatedAt),
		})
	}
	return out
}
