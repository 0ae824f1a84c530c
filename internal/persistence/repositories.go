package persistence

import (
	"context"
	"time"

	"github.com/example/roombook/internal/scheduler"
)

// UserRepository stores the directory of known subjects.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// ResourceRepository exposes CRUD operations for bookable resources.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) error
	UpdateResource(ctx context.Context, resource Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

// ReservationRepository stores reservations.
//
// InsertReservation and ReplaceReservationInterval perform the overlap check
// and the write as one unit with respect to every other writer on the same
// resource. They return ErrConflict when the interval overlaps another
// reservation on that resource.
type ReservationRepository interface {
	FindOverlapping(ctx context.Context, resourceID string, interval scheduler.Interval, excludeID string) ([]Reservation, error)
	InsertReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	ReplaceReservationInterval(ctx context.Context, id string, interval scheduler.Interval, updatedAt time.Time) (Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservationsByOwner(ctx context.Context, ownerID string) ([]Reservation, error)
	ListAllReservations(ctx context.Context) ([]Reservation, error)
}

// Store aggregates every repository served by one backend.
type Store interface {
	UserRepository
	ResourceRepository
	ReservationRepository
	Ping(ctx context.Context) error
	Close() error
}
