// Package events carries reservation domain events from the engine to subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	ReservationCreated Type = "reservation.created"
	ReservationUpdated Type = "reservation.updated"
	ReservationDeleted Type = "reservation.deleted"
)

// ReservationPayload is the wire view of a reservation.
type ReservationPayload struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	OwnerID    string    `json:"owner_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// Event is a single domain event. Reservation is nil for deletions.
type Event struct {
	ID            string              `json:"id"`
	Type          Type                `json:"type"`
	ReservationID string              `json:"reservation_id"`
	ResourceID    string              `json:"resource_id"`
	Reservation   *ReservationPayload `json:"reservation,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// New builds an event with a fresh ID.
func New(typ Type, reservationID, resourceID string, payload *ReservationPayload, occurredAt time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		ReservationID: reservationID,
		ResourceID:    resourceID,
		Reservation:   payload,
		OccurredAt:    occurredAt.UTC(),
	}
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Sink delivers events to one kind of subscriber.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
