package scheduler

import (
	"errors"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.May, 6, hour, minute, 0, 0, time.UTC)
}

func span(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical intervals overlap", span(10, 0, 11, 0), span(10, 0, 11, 0), true},
		{"back-to-back does not overlap", span(10, 0, 11, 0), span(11, 0, 12, 0), false},
		{"back-to-back reversed does not overlap", span(11, 0, 12, 0), span(10, 0, 11, 0), false},
		{"partial overlap at start", span(10, 0, 11, 0), span(9, 30, 10, 30), true},
		{"partial overlap at end", span(10, 0, 11, 0), span(10, 45, 11, 15), true},
		{"containment", span(9, 0, 17, 0), span(12, 0, 13, 0), true},
		{"disjoint", span(8, 0, 9, 0), span(13, 0, 14, 0), false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("overlap must be symmetric, got %v", got)
			}
		})
	}
}

func TestIntervalOverlapsAcrossZones(t *testing.T) {
	stockholm := time.FixedZone("CEST", 2*60*60)
	a := Interval{Start: time.Date(2024, 5, 6, 12, 0, 0, 0, stockholm), End: time.Date(2024, 5, 6, 13, 0, 0, 0, stockholm)}
	b := span(10, 30, 11, 30)
	if !a.Overlaps(b) {
		t.Fatalf("expected 12:00-13:00 CEST to overlap 10:30-11:30 UTC")
	}
}

func TestNewInterval(t *testing.T) {
	if _, err := NewInterval(at(10, 0), at(10, 0)); !errors.Is(err, ErrEmptyInterval) {
		t.Fatalf("expected ErrEmptyInterval for zero-length interval, got %v", err)
	}
	if _, err := NewInterval(at(11, 0), at(10, 0)); !errors.Is(err, ErrEmptyInterval) {
		t.Fatalf("expected ErrEmptyInterval for inverted interval, got %v", err)
	}
	iv, err := NewInterval(at(10, 0), at(11, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.Duration() != 90*time.Minute {
		t.Fatalf("expected 90m duration, got %s", iv.Duration())
	}
}

func TestConflicts(t *testing.T) {
	existing := []Booking{
		{ID: "b", ResourceID: "room-1", Interval: span(10, 0, 11, 0)},
		{ID: "a", ResourceID: "room-1", Interval: span(9, 0, 10, 0)},
		{ID: "c", ResourceID: "room-2", Interval: span(10, 0, 11, 0)},
		{ID: "d", ResourceID: "room-1", Interval: span(10, 30, 12, 0)},
	}

	t.Run("overlap on same resource produces conflicts", func(t *testing.T) {
		got := Conflicts(existing, Booking{ResourceID: "room-1", Interval: span(10, 15, 10, 45)})
		if len(got) != 2 || got[0].ID != "b" || got[1].ID != "d" {
			t.Fatalf("unexpected conflicts: %+v", got)
		}
	})

	t.Run("other resources are ignored", func(t *testing.T) {
		got := Conflicts(existing, Booking{ResourceID: "room-2", Interval: span(12, 0, 13, 0)})
		if len(got) != 0 {
			t.Fatalf("expected no conflicts, got %+v", got)
		}
	})

	t.Run("candidate never conflicts with itself", func(t *testing.T) {
		got := Conflicts(existing, Booking{ID: "b", ResourceID: "room-1", Interval: span(10, 0, 10, 15)})
		if len(got) != 0 {
			t.Fatalf("expected own booking to be excluded, got %+v", got)
		}
	})

	t.Run("touching intervals yield no conflicts", func(t *testing.T) {
		got := Conflicts(existing, Booking{ResourceID: "room-1", Interval: span(12, 0, 13, 0)})
		if len(got) != 0 {
			t.Fatalf("expected no conflicts, got %+v", got)
		}
	})
}
