package application

import (
	"context"
	"time"

	"github.com/example/roombook/internal/events"
)

// ReservationLister finds the reservations a cascading delete is about to remove.
type ReservationLister interface {
	ListAllReservations(ctx context.Context) ([]Reservation, error)
	ListReservationsByOwner(ctx context.Context, ownerID string) ([]Reservation, error)
}

// cascadeNotifier publishes ReservationDeleted for reservations removed as a
// side effect of deleting their resource or owner. The zero value is disabled.
//
// Reservations are listed before the cascade and announced after it commits;
// a reservation inserted in between is removed without an event.
type cascadeNotifier struct {
	reservations ReservationLister
	events       events.Publisher
}

func (n cascadeNotifier) enabled() bool {
	return n.reservations != nil && n.events != nil
}

func (n cascadeNotifier) onResource(ctx context.Context, resourceID string) ([]Reservation, error) {
	if !n.enabled() {
		return nil, nil
	}
	all, err := n.reservations.ListAllReservations(ctx)
	if err != nil {
		return nil, err
	}
	doomed := make([]Reservation, 0)
	for _, r := range all {
		if r.ResourceID == resourceID {
			doomed = append(doomed, r)
		}
	}
	return doomed, nil
}

func (n cascadeNotifier) ownedBy(ctx context.Context, ownerID string) ([]Reservation, error) {
	if !n.enabled() {
		return nil, nil
	}
	return n.reservations.ListReservationsByOwner(ctx, ownerID)
}

func (n cascadeNotifier) publish(ctx context.Context, removed []Reservation, at time.Time) {
	if !n.enabled() {
		return
	}
	for _, r := range removed {
		n.events.Publish(ctx, reservationDeleted(r, at))
	}
}

func reservationDeleted(r Reservation, at time.Time) events.Event {
	return events.New(events.ReservationDeleted, r.ID, r.ResourceID, nil, at)
}
