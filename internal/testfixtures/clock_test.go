package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := At(9, 0)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(At(10, 30)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(At(17, 0))
	if got := clock.Now(); !got.Equal(At(17, 0)) {
		t.Fatalf("expected %v, got %v", At(17, 0), got)
	}
}

func TestClockNowFunc(t *testing.T) {
	clock := NewClock(At(8, 0))
	nowFn := clock.NowFunc()

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(At(8, 1)) {
		t.Fatalf("expected NowFunc to follow the clock, got %v", got)
	}

	var nilClock *Clock
	if nilClock.NowFunc() == nil {
		t.Fatalf("expected a fallback time source for nil clock")
	}
}
