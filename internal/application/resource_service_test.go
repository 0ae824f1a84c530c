package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/catalog"
	"github.com/example/roombook/internal/events"
	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/testfixtures"
)

type catalogStub struct {
	invalidateErr error
	invalidated   int
	resources     []Resource
}

func (c *catalogStub) Get(context.Context) ([]Resource, bool, error) {
	return c.resources, true, nil
}

func (c *catalogStub) Invalidate(context.Context) error {
	c.invalidated++
	return c.invalidateErr
}

func newResourceService(t *testing.T, store persistence.Store, cache ResourceCatalog) *ResourceService {
	t.Helper()
	return NewResourceService(store, cache, testfixtures.NewIDGenerator("resource").NextFunc(), testfixtures.NewClock(time.Time{}).NowFunc())
}

func newCatalog(store persistence.Store) *catalog.Cache[[]Resource] {
	backend := catalog.NewMemoryBackend(8, nil)
	return catalog.New[[]Resource](backend, store.ListResources, catalog.Options{TTL: time.Minute})
}

func validInput(name string) ResourceInput {
	return ResourceInput{Name: name, Capacity: 6, Category: CategoryMeetingRoom}
}

func TestResourceService_CreateResource(t *testing.T) {
	admin := testfixtures.Admin("root")

	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), nil)
		for _, subject := range []*authz.Subject{nil, testfixtures.Member("alice")} {
			_, err := svc.CreateResource(context.Background(), CreateResourceParams{Subject: subject, Input: validInput("Atlas")})
			if !errors.Is(err, ErrInsufficientRole) {
				t.Fatalf("expected ErrInsufficientRole for %+v, got %v", subject, err)
			}
		}
	})

	t.Run("validates fields", func(t *testing.T) {
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), nil)
		_, err := svc.CreateResource(context.Background(), CreateResourceParams{
			Subject: admin,
			Input:   ResourceInput{Name: "   ", Capacity: 0, Category: "garage"},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		for _, field := range []string{"name", "capacity", "category"} {
			if vErr.FieldErrors[field] == "" {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}

		_, err = svc.CreateResource(context.Background(), CreateResourceParams{Subject: admin, Input: validInput(strings.Repeat("x", 121))})
		if !errors.As(err, &vErr) || !strings.Contains(vErr.FieldErrors["name"], "120") {
			t.Fatalf("expected name length error, got %v", err)
		}
	})

	t.Run("trims input and persists", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		svc := newResourceService(t, store, nil)
		created, err := svc.CreateResource(context.Background(), CreateResourceParams{
			Subject: admin,
			Input:   ResourceInput{Name: "  Atlas  ", Capacity: 10, Category: " Conference_Hall "},
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if created.Name != "Atlas" || created.Category != CategoryConferenceHall || created.ID != "resource-1" {
			t.Fatalf("unexpected resource: %+v", created)
		}
		if _, err := store.GetResource(context.Background(), created.ID); err != nil {
			t.Fatalf("expected resource to be stored: %v", err)
		}
	})

	t.Run("maps duplicate names", func(t *testing.T) {
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), nil)
		if _, err := svc.CreateResource(context.Background(), CreateResourceParams{Subject: admin, Input: validInput("Atlas")}); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if _, err := svc.CreateResource(context.Background(), CreateResourceParams{Subject: admin, Input: validInput("Atlas")}); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("invalidation failures do not fail the write", func(t *testing.T) {
		stub := &catalogStub{invalidateErr: errors.New("redis down")}
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), stub)
		if _, err := svc.CreateResource(context.Background(), CreateResourceParams{Subject: admin, Input: validInput("Atlas")}); err != nil {
			t.Fatalf("expected create to succeed, got %v", err)
		}
		if stub.invalidated != 1 {
			t.Fatalf("expected one invalidation, got %d", stub.invalidated)
		}
	})
}

func TestResourceService_CatalogInvalidation(t *testing.T) {
	admin := testfixtures.Admin("root")
	store := testfixtures.NewMemoryStore(t)
	cache := newCatalog(store)
	svc := newResourceService(t, store, cache)

	created, err := svc.CreateResource(context.Background(), CreateResourceParams{Subject: admin, Input: validInput("Atlas")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, fromCache, err := svc.ListResources(context.Background()); err != nil || fromCache {
		t.Fatalf("expected first listing to miss, got fromCache=%v err=%v", fromCache, err)
	}
	if _, fromCache, err := svc.ListResources(context.Background()); err != nil || !fromCache {
		t.Fatalf("expected second listing to hit, got fromCache=%v err=%v", fromCache, err)
	}

	if _, err := svc.UpdateResource(context.Background(), UpdateResourceParams{
		Subject:    admin,
		ResourceID: created.ID,
		Input:      ResourceInput{Name: "Atlas North", Capacity: 12, Category: CategoryFocusBooth},
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	resources, fromCache, err := svc.ListResources(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if fromCache {
		t.Fatalf("expected listing after update to bypass the cache")
	}
	if len(resources) != 1 || resources[0].Name != "Atlas North" || resources[0].Capacity != 12 {
		t.Fatalf("expected updated resource, got %+v", resources)
	}

	if err := svc.DeleteResource(context.Background(), admin, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	resources, fromCache, err = svc.ListResources(context.Background())
	if err != nil || fromCache || len(resources) != 0 {
		t.Fatalf("expected empty uncached listing after delete, got %+v fromCache=%v err=%v", resources, fromCache, err)
	}
}

func TestResourceService_UpdateAndDelete(t *testing.T) {
	admin := testfixtures.Admin("root")

	t.Run("update reports missing resources", func(t *testing.T) {
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), nil)
		_, err := svc.UpdateResource(context.Background(), UpdateResourceParams{Subject: admin, ResourceID: "missing", Input: validInput("Atlas")})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update requires administrator privileges", func(t *testing.T) {
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), nil)
		_, err := svc.UpdateResource(context.Background(), UpdateResourceParams{Subject: testfixtures.Member("alice"), ResourceID: "x", Input: validInput("Atlas")})
		if !errors.Is(err, ErrInsufficientRole) {
			t.Fatalf("expected ErrInsufficientRole, got %v", err)
		}
	})

	t.Run("delete reports missing resources", func(t *testing.T) {
		svc := newResourceService(t, testfixtures.NewMemoryStore(t), nil)
		if err := svc.DeleteResource(context.Background(), admin, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete removes reservations on the resource", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		room := testfixtures.NewResourceFixture()
		testfixtures.SeedResources(t, store, room)
		r := testfixtures.NewReservationFixture(room.ID, "alice")
		if _, err := store.InsertReservation(context.Background(), r); err != nil {
			t.Fatalf("seed reservation: %v", err)
		}

		svc := newResourceService(t, store, nil)
		if err := svc.DeleteResource(context.Background(), admin, room.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.GetReservation(context.Background(), r.ID); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected reservation to be removed, got %v", err)
		}
	})

	t.Run("delete announces every cascaded reservation", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		room := testfixtures.NewResourceFixture()
		other := testfixtures.NewResourceFixture()
		testfixtures.SeedResources(t, store, room, other)
		doomed := []Reservation{
			testfixtures.NewReservationFixture(room.ID, "alice", testfixtures.WithInterval(testfixtures.Span(9, 0, 10, 0))),
			testfixtures.NewReservationFixture(room.ID, "bob", testfixtures.WithInterval(testfixtures.Span(13, 0, 14, 0))),
		}
		kept := testfixtures.NewReservationFixture(other.ID, "alice")
		for _, r := range append(doomed, kept) {
			if _, err := store.InsertReservation(context.Background(), r); err != nil {
				t.Fatalf("seed reservation: %v", err)
			}
		}

		published := &recordingPublisher{}
		svc := newResourceService(t, store, nil).WithCascadeEvents(store, published)
		if err := svc.DeleteResource(context.Background(), admin, room.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		got := map[string]events.Type{}
		for _, e := range published.events {
			if e.ResourceID != room.ID {
				t.Fatalf("unexpected event for resource %s", e.ResourceID)
			}
			got[e.ReservationID] = e.Type
		}
		if len(got) != len(doomed) {
			t.Fatalf("expected %d events, got %+v", len(doomed), published.events)
		}
		for _, r := range doomed {
			if got[r.ID] != events.ReservationDeleted {
				t.Fatalf("expected deletion event for %s, got %+v", r.ID, published.events)
			}
		}
	})

	t.Run("failed delete publishes nothing", func(t *testing.T) {
		store := testfixtures.NewMemoryStore(t)
		published := &recordingPublisher{}
		svc := newResourceService(t, store, nil).WithCascadeEvents(store, published)
		if err := svc.DeleteResource(context.Background(), admin, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(published.types()) != 0 {
			t.Fatalf("expected no events, got %v", published.types())
		}
	})
}

func TestResourceService_ListResourcesOrdersByName(t *testing.T) {
	store := testfixtures.NewMemoryStore(t)
	testfixtures.SeedResources(t, store,
		testfixtures.NewResourceFixture(testfixtures.WithResourceName("Zephyr")),
		testfixtures.NewResourceFixture(testfixtures.WithResourceName("Aurora")),
	)
	svc := newResourceService(t, store, nil)

	resources, fromCache, err := svc.ListResources(context.Background())
	if err != nil || fromCache {
		t.Fatalf("unexpected result: fromCache=%v err=%v", fromCache, err)
	}
	if len(resources) != 2 || resources[0].Name != "Aurora" {
		t.Fatalf("expected name ordering, got %+v", resources)
	}

	if _, err := svc.GetResource(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// stalledListStore never answers ListResources until its context ends.
type stalledListStore struct {
	persistence.Store
}

func (stalledListStore) ListResources(ctx context.Context) ([]Resource, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResourceService_ListResourcesTimesOutOnStalledStore(t *testing.T) {
	store := stalledListStore{Store: testfixtures.NewMemoryStore(t)}
	cache := catalog.New[[]Resource](catalog.NewMemoryBackend(8, nil), store.ListResources, catalog.Options{
		TTL:         time.Minute,
		LoadTimeout: 100 * time.Millisecond,
	})
	svc := NewResourceServiceWithLogger(store, cache, nil, nil, 100*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.ListResources(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTemporarilyUnavailable) {
			t.Fatalf("expected ErrTemporarilyUnavailable, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListResources blocked past the configured load timeout")
	}
}
