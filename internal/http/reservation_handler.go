package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/roombook/internal/application"
	"github.com/example/roombook/internal/authz"
)

type reservationService interface {
	Create(ctx context.Context, params application.CreateReservationParams) (application.Reservation, error)
	Update(ctx context.Context, params application.UpdateReservationParams) (application.Reservation, error)
	Delete(ctx context.Context, subject *authz.Subject, reservationID string) error
	Get(ctx context.Context, subject *authz.Subject, reservationID string) (application.Reservation, error)
	List(ctx context.Context, subject *authz.Subject) ([]application.Reservation, error)
	CheckAvailability(ctx context.Context, query application.AvailabilityQuery) (bool, error)
}

type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").InfoContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	reservation, err := h.service.Create(r.Context(), application.CreateReservationParams{
		Subject: SubjectFromContext(r.Context()),
		Input:   req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/reservations/"+reservation.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request, reservationID string) {
	if strings.TrimSpace(reservationID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservation)
		return
	}

	var req reservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "reservation_id", reservationID, "error_kind", "bad_request").InfoContext(r.Context(), "failed to decode reservation update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	reservation, err := h.service.Update(r.Context(), application.UpdateReservationParams{
		Subject:       SubjectFromContext(r.Context()),
		ReservationID: reservationID,
		Input:         req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request, reservationID string) {
	if strings.TrimSpace(reservationID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservation)
		return
	}
	if err := h.service.Delete(r.Context(), SubjectFromContext(r.Context()), reservationID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request, reservationID string) {
	reservation, err := h.service.Get(r.Context(), SubjectFromContext(r.Context()), reservationID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.service.List(r.Context(), SubjectFromContext(r.Context()))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "List").With("result_count", len(reservations)).DebugContext(r.Context(), "reservations listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listReservationsResponse{Reservations: toReservationDTOs(reservations)})
}

// Availability answers GET /resources/{id}/availability?start=&end=.
func (h *ReservationHandler) Availability(w http.ResponseWriter, r *http.Request, resourceID string) {
	query := r.URL.Query()
	start, startErr := time.Parse(time.RFC3339, query.Get("start"))
	end, endErr := time.Parse(time.RFC3339, query.Get("end"))
	if startErr != nil || endErr != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTimeRange)
		return
	}

	available, err := h.service.CheckAvailability(r.Context(), application.AvailabilityQuery{
		Subject:    SubjectFromContext(r.Context()),
		ResourceID: resourceID,
		Start:      start,
		End:        end,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{
		ResourceID: resourceID,
		StartTime:  formatTime(start),
		EndTime:    formatTime(end),
		Available:  available,
	})
}

type reservationRequest struct {
	ResourceID string    `json:"resource_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

func (r reservationRequest) toInput() application.ReservationInput {
	return application.ReservationInput{
		ResourceID: strings.TrimSpace(r.ResourceID),
		Start:      r.StartTime,
		End:        r.EndTime,
	}
}

type reservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
}

type listReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
}

type availabilityResponse struct {
	ResourceID string `json:"resource_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Available  bool   `json:"available"`
}

type reservationDTO struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	OwnerID    string `json:"owner_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toReservationDTO(r application.Reservation) reservationDTO {
	return reservationDTO{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		OwnerID:    r.OwnerID,
		StartTime:  formatTime(r.Start),
		EndTime:    formatTime(r.End),
		CreatedAt:  formatTime(r.CreatedAt),
		UpdatedAt:  formatTime(r.UpdatedAt),
	}
}

func toReservationDTOs(reservations []application.Reservation) []reservationDTO {
	out := make([]reservationDTO, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, toReservationDTO(r))
	}
	return out
}
