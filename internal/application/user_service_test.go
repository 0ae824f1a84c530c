package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/roombook/internal/events"
	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/testfixtures"
)

func TestUserService_RegisterUser(t *testing.T) {
	t.Parallel()

	t.Run("validates input fields", func(t *testing.T) {
		svc := NewUserService(testfixtures.NewMemoryStore(t), nil)
		_, err := svc.RegisterUser(context.Background(), UserInput{ID: " ", DisplayName: "", Role: "owner"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		for _, field := range []string{"id", "display_name", "role"} {
			if vErr.FieldErrors[field] == "" {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("normalizes the role and persists", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		svc := NewUserService(store, testfixtures.NewClock(time.Time{}).NowFunc())
		user, err := svc.RegisterUser(context.Background(), UserInput{ID: "alice", DisplayName: " Alice ", Role: "admin"})
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if user.Role != "ADMIN" || user.DisplayName != "Alice" || !user.CreatedAt.Equal(testfixtures.ReferenceTime()) {
			t.Fatalf("unexpected user: %+v", user)
		}
	})

	t.Run("maps duplicate ids", func(t *testing.T) {
		svc := NewUserService(testfixtures.NewMemoryStore(t), nil)
		input := UserInput{ID: "alice", DisplayName: "Alice", Role: "USER"}
		if _, err := svc.RegisterUser(context.Background(), input); err != nil {
			t.Fatalf("first register failed: %v", err)
		}
		if _, err := svc.RegisterUser(context.Background(), input); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestUserService_ListUsers(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryStore(t)
	clock := testfixtures.NewClock(time.Time{})
	svc := NewUserService(store, clock.NowFunc())
	for _, id := range []string{"zoe", "adam"} {
		if _, err := svc.RegisterUser(context.Background(), UserInput{ID: id, DisplayName: id, Role: "USER"}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		clock.Advance(time.Second)
	}

	if _, err := svc.ListUsers(context.Background(), testfixtures.Member("zoe")); !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}

	users, err := svc.ListUsers(context.Background(), testfixtures.Admin("root"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(users) != 2 || users[0].ID != "zoe" || users[1].ID != "adam" {
		t.Fatalf("expected creation order, got %+v", users)
	}
}

func TestUserService_DeleteUser(t *testing.T) {
	t.Parallel()

	admin := testfixtures.Admin("root")

	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := NewUserService(testfixtures.NewMemoryStore(t), nil)
		if err := svc.DeleteUser(context.Background(), testfixtures.Member("alice"), "bob"); !errors.Is(err, ErrInsufficientRole) {
			t.Fatalf("expected ErrInsufficientRole, got %v", err)
		}
	})

	t.Run("reports missing users", func(t *testing.T) {
		svc := NewUserService(testfixtures.NewMemoryStore(t), nil)
		if err := svc.DeleteUser(context.Background(), admin, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("removes the user's reservations", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		svc := NewUserService(store, nil)
		if _, err := svc.RegisterUser(context.Background(), UserInput{ID: "alice", DisplayName: "Alice", Role: "USER"}); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		room := testfixtures.NewResourceFixture()
		testfixtures.SeedResources(t, store, room)
		r := testfixtures.NewReservationFixture(room.ID, "alice")
		if _, err := store.InsertReservation(context.Background(), r); err != nil {
			t.Fatalf("seed reservation: %v", err)
		}

		if err := svc.DeleteUser(context.Background(), admin, "alice"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.GetReservation(context.Background(), r.ID); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected reservation cascade, got %v", err)
		}
	})

	t.Run("announces the reservations removed with the user", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		published := &recordingPublisher{}
		svc := NewUserService(store, nil).WithCascadeEvents(store, published)
		for _, id := range []string{"alice", "bob"} {
			if _, err := svc.RegisterUser(context.Background(), UserInput{ID: id, DisplayName: id, Role: "USER"}); err != nil {
				t.Fatalf("register %s: %v", id, err)
			}
		}
		room := testfixtures.NewResourceFixture()
		testfixtures.SeedResources(t, store, room)
		mine := testfixtures.NewReservationFixture(room.ID, "alice", testfixtures.WithInterval(testfixtures.Span(9, 0, 10, 0)))
		theirs := testfixtures.NewReservationFixture(room.ID, "bob", testfixtures.WithInterval(testfixtures.Span(13, 0, 14, 0)))
		for _, r := range []Reservation{mine, theirs} {
			if _, err := store.InsertReservation(context.Background(), r); err != nil {
				t.Fatalf("seed reservation: %v", err)
			}
		}

		if err := svc.DeleteUser(context.Background(), admin, "alice"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if len(published.events) != 1 {
			t.Fatalf("expected one event, got %+v", published.events)
		}
		e := published.events[0]
		if e.Type != events.ReservationDeleted || e.ReservationID != mine.ID || e.ResourceID != room.ID {
			t.Fatalf("unexpected event: %+v", e)
		}
		if _, err := store.GetReservation(context.Background(), theirs.ID); err != nil {
			t.Fatalf("expected other owners' reservations to survive, got %v", err)
		}
	})
}
