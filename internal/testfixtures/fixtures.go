package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/scheduler"
)

var (
	userCounter        uint64
	resourceCounter    uint64
	reservationCounter uint64
)

// referenceTime is a Monday morning in UTC.
var referenceTime = time.Date(2024, time.May, 6, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns hh:mm UTC on the reference day.
func At(hour, minute int) time.Time {
	y, m, d := referenceTime.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

// Span returns the interval [h1:m1, h2:m2) on the reference day.
func Span(h1, m1, h2, m2 int) scheduler.Interval {
	return scheduler.Interval{Start: At(h1, m1), End: At(h2, m2)}
}

// Admin returns an administrator subject.
func Admin(id string) *authz.Subject {
	return &authz.Subject{ID: id, Role: authz.RoleAdmin}
}

// Member returns a regular subject.
func Member(id string) *authz.Subject {
	return &authz.Subject{ID: id, Role: authz.RoleUser}
}

// ----------------------------- Resource fixtures -----------------------------

// ResourceOption configures a generated resource.
type ResourceOption func(*persistence.Resource)

// NewResourceFixture returns a deterministic meeting room.
func NewResourceFixture(opts ...ResourceOption) persistence.Resource {
	idx := atomic.AddUint64(&resourceCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	resource := persistence.Resource{
		ID:        fmt.Sprintf("resource-%03d", idx),
		Name:      fmt.Sprintf("Room %03d", idx),
		Capacity:  8,
		Category:  "meeting_room",
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&resource)
	}
	return resource
}

// WithResourceID overrides the generated resource ID.
func WithResourceID(id string) ResourceOption {
	return func(r *persistence.Resource) { r.ID = id }
}

// WithResourceName overrides the generated name.
func WithResourceName(name string) ResourceOption {
	return func(r *persistence.Resource) { r.Name = name }
}

// WithCapacity overrides the capacity.
func WithCapacity(capacity int) ResourceOption {
	return func(r *persistence.Resource) { r.Capacity = capacity }
}

// WithCategory overrides the category.
func WithCategory(category string) ResourceOption {
	return func(r *persistence.Resource) { r.Category = category }
}

// ----------------------------- Reservation fixtures -----------------------------

// ReservationOption configures a generated reservation.
type ReservationOption func(*persistence.Reservation)

// NewReservationFixture returns a one hour reservation on resourceID starting
// at 10:00 on the reference day.
func NewReservationFixture(resourceID, ownerID string, opts ...ReservationOption) persistence.Reservation {
	idx := atomic.AddUint64(&reservationCounter, 1)
	reservation := persistence.Reservation{
		ID:         fmt.Sprintf("reservation-%03d", idx),
		ResourceID: resourceID,
		OwnerID:    ownerID,
		Start:      At(10, 0),
		End:        At(11, 0),
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&reservation)
	}
	return reservation
}

// WithReservationID overrides the generated reservation ID.
func WithReservationID(id string) ReservationOption {
	return func(r *persistence.Reservation) { r.ID = id }
}

// WithInterval sets the reserved interval.
func WithInterval(iv scheduler.Interval) ReservationOption {
	return func(r *persistence.Reservation) {
		r.Start = iv.Start
		r.End = iv.End
	}
}

// ----------------------------- User fixtures -----------------------------

// NewUserFixture returns a directory entry with the given role.
func NewUserFixture(role authz.Role) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	return persistence.User{
		ID:          fmt.Sprintf("user-%03d", idx),
		DisplayName: fmt.Sprintf("User %03d", idx),
		Role:        string(role),
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Second),
	}
}
