package scheduler

import (
	"errors"
	"sort"
	"time"
)

// ErrEmptyInterval is returned when an interval does not end strictly after it starts.
var ErrEmptyInterval = errors.New("scheduler: end must be after start")

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval validates and returns the interval [start, end).
func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate reports ErrEmptyInterval unless Start < End.
func (iv Interval) Validate() error {
	if !iv.Start.Before(iv.End) {
		return ErrEmptyInterval
	}
	return nil
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the two half-open intervals intersect:
// s1 < e2 && s2 < e1. Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// UTC returns the interval with both bounds converted to UTC.
func (iv Interval) UTC() Interval {
	return Interval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

// Booking is the minimal view of a reservation needed for conflict detection.
type Booking struct {
	ID         string
	ResourceID string
	Interval   Interval
}

// Conflicts returns the bookings on candidate's resource whose intervals overlap
// candidate, skipping candidate's own ID. Results are ordered by start then ID.
func Conflicts(existing []Booking, candidate Booking) []Booking {
	var out []Booking
	for _, b := range existing {
		if b.ResourceID != candidate.ResourceID {
			continue
		}
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if b.Interval.Overlaps(candidate.Interval) {
			out = append(out, b)
		}
	}
	SortBookings(out)
	return out
}

// SortBookings orders bookings by start time, breaking ties by ID.
func SortBookings(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].Interval.Start.Equal(bookings[j].Interval.Start) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].Interval.Start.Before(bookings[j].Interval.Start)
	})
}
