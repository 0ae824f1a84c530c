package persistence

import (
	"time"

	"github.com/example/roombook/internal/scheduler"
)

// Resource is a bookable entity in the catalog.
type Resource struct {
	ID        string
	Name      string
	Capacity  int
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reservation is a claim on one resource for the half-open interval [Start, End).
type Reservation struct {
	ID         string
	ResourceID string
	OwnerID    string
	Start      time.Time
	End        time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Interval returns the reserved range.
func (r Reservation) Interval() scheduler.Interval {
	return scheduler.Interval{Start: r.Start, End: r.End}
}

// Booking returns the conflict-detection view of the reservation.
func (r Reservation) Booking() scheduler.Booking {
	return scheduler.Booking{ID: r.ID, ResourceID: r.ResourceID, Interval: r.Interval()}
}

// User is a known subject in the directory.
type User struct {
	ID          string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}
