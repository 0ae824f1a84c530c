package application

import (
	"time"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/persistence"
)

// Records are shared with the persistence layer.
type (
	Resource    = persistence.Resource
	Reservation = persistence.Reservation
	User        = persistence.User
)

// Resource categories.
const (
	CategoryMeetingRoom    = "meeting_room"
	CategoryConferenceHall = "conference_hall"
	CategoryFocusBooth     = "focus_booth"
	CategoryEventSpace     = "event_space"
)

// ReservationInput captures caller provided reservation fields.
type ReservationInput struct {
	ResourceID string
	Start      time.Time
	End        time.Time
}

// CreateReservationParams wraps the data required to create a reservation.
type CreateReservationParams struct {
	Subject *authz.Subject
	Input   ReservationInput
}

// UpdateReservationParams wraps the data required to move a reservation.
// Only the interval may change; Input.ResourceID is ignored.
type UpdateReservationParams struct {
	Subject       *authz.Subject
	ReservationID string
	Input         ReservationInput
}

// AvailabilityQuery asks whether a resource is free for an interval.
type AvailabilityQuery struct {
	Subject    *authz.Subject
	ResourceID string
	Start      time.Time
	End        time.Time
}

// ResourceInput captures caller provided resource fields.
type ResourceInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Capacity int    `json:"capacity" validate:"min=1"`
	Category string `json:"category" validate:"required,oneof=meeting_room conference_hall focus_booth event_space"`
}

// CreateResourceParams wraps the data required to create a resource.
type CreateResourceParams struct {
	Subject *authz.Subject
	Input   ResourceInput
}

// UpdateResourceParams wraps the data required to update a resource.
type UpdateResourceParams struct {
	Subject    *authz.Subject
	ResourceID string
	Input      ResourceInput
}

// UserInput captures the fields of a directory entry.
type UserInput struct {
	ID          string `json:"id" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Role        string `json:"role" validate:"required,oneof=USER ADMIN"`
}
