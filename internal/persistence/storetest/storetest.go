// Package storetest holds the behavioural contract every persistence.Store must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/scheduler"
)

// Factory returns an empty, ready store. The factory registers its own cleanup.
type Factory func(t *testing.T) persistence.Store

var base = time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return base.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func span(h1, m1, h2, m2 int) scheduler.Interval {
	return scheduler.Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func seedResource(t *testing.T, store persistence.Store, id, name string) persistence.Resource {
	t.Helper()
	resource := persistence.Resource{
		ID:        id,
		Name:      name,
		Capacity:  8,
		Category:  "meeting_room",
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, store.CreateResource(context.Background(), resource))
	return resource
}

func reservation(id, resourceID, ownerID string, iv scheduler.Interval) persistence.Reservation {
	return persistence.Reservation{
		ID:         id,
		ResourceID: resourceID,
		OwnerID:    ownerID,
		Start:      iv.Start,
		End:        iv.End,
		CreatedAt:  base,
		UpdatedAt:  base,
	}
}

// Run executes the full contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("resources", func(t *testing.T) { testResources(t, newStore) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("reservations", func(t *testing.T) { testReservations(t, newStore) })
	t.Run("concurrent inserts never overlap", func(t *testing.T) { testConcurrentInserts(t, newStore) })
	t.Run("acknowledged deletes are never undone", func(t *testing.T) { testDeleteRacingReplace(t, newStore) })
}

func testResources(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("creates, reads, updates, and deletes resources", func(t *testing.T) {
		store := newStore(t)
		created := seedResource(t, store, "room-1", "Aurora")

		fetched, err := store.GetResource(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Aurora", fetched.Name)
		assert.Equal(t, 8, fetched.Capacity)
		assert.Equal(t, "meeting_room", fetched.Category)

		fetched.Name = "Aurora North"
		fetched.Capacity = 12
		fetched.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, store.UpdateResource(ctx, fetched))

		fetched, err = store.GetResource(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Aurora North", fetched.Name)
		assert.Equal(t, 12, fetched.Capacity)

		require.NoError(t, store.DeleteResource(ctx, created.ID))
		assert.ErrorIs(t, store.DeleteResource(ctx, created.ID), persistence.ErrNotFound)
		_, err = store.GetResource(ctx, created.ID)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("rejects duplicate names and ids", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")

		dup := persistence.Resource{ID: "room-2", Name: "Aurora", Capacity: 2, Category: "focus_booth", CreatedAt: base, UpdatedAt: base}
		assert.ErrorIs(t, store.CreateResource(ctx, dup), persistence.ErrDuplicate)

		dup = persistence.Resource{ID: "room-1", Name: "Borealis", Capacity: 2, Category: "focus_booth", CreatedAt: base, UpdatedAt: base}
		assert.ErrorIs(t, store.CreateResource(ctx, dup), persistence.ErrDuplicate)
	})

	t.Run("update of unknown resource is not found", func(t *testing.T) {
		store := newStore(t)
		missing := persistence.Resource{ID: "ghost", Name: "Ghost", Capacity: 1, Category: "focus_booth", UpdatedAt: base}
		assert.ErrorIs(t, store.UpdateResource(ctx, missing), persistence.ErrNotFound)
	})

	t.Run("lists resources ordered by name", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-c", "Cirrus")
		seedResource(t, store, "room-a", "Aurora")
		seedResource(t, store, "room-b", "Borealis")

		resources, err := store.ListResources(ctx)
		require.NoError(t, err)
		require.Len(t, resources, 3)
		assert.Equal(t, []string{"Aurora", "Borealis", "Cirrus"}, []string{resources[0].Name, resources[1].Name, resources[2].Name})
	})

	t.Run("deleting a resource removes its reservations", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		_, err := store.InsertReservation(ctx, reservation("res-1", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)

		require.NoError(t, store.DeleteResource(ctx, "room-1"))
		_, err = store.GetReservation(ctx, "res-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("creates, lists, and deletes users", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateUser(ctx, persistence.User{ID: "bob", DisplayName: "Bob", Role: "USER", CreatedAt: base}))
		require.NoError(t, store.CreateUser(ctx, persistence.User{ID: "alice", DisplayName: "Alice", Role: "ADMIN", CreatedAt: base}))
		assert.ErrorIs(t, store.CreateUser(ctx, persistence.User{ID: "alice", DisplayName: "Again", Role: "USER", CreatedAt: base}), persistence.ErrDuplicate)

		user, err := store.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "ADMIN", user.Role)

		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].ID)

		require.NoError(t, store.DeleteUser(ctx, "alice"))
		assert.ErrorIs(t, store.DeleteUser(ctx, "alice"), persistence.ErrNotFound)
	})

	t.Run("deleting a user removes their reservations", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		require.NoError(t, store.CreateUser(ctx, persistence.User{ID: "carol", DisplayName: "Carol", Role: "USER", CreatedAt: base}))
		_, err := store.InsertReservation(ctx, reservation("res-1", "room-1", "carol", span(9, 0, 10, 0)))
		require.NoError(t, err)

		require.NoError(t, store.DeleteUser(ctx, "carol"))
		owned, err := store.ListReservationsByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})
}

func testReservations(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("allows back-to-back reservations", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")

		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)
		_, err = store.InsertReservation(ctx, reservation("res-b", "room-1", "bob", span(11, 0, 12, 0)))
		require.NoError(t, err)
	})

	t.Run("rejects overlapping and identical intervals", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")

		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)
		_, err = store.InsertReservation(ctx, reservation("res-b", "room-1", "alice", span(10, 0, 11, 0)))
		assert.ErrorIs(t, err, persistence.ErrConflict)
		_, err = store.InsertReservation(ctx, reservation("res-c", "room-1", "bob", span(10, 30, 11, 30)))
		assert.ErrorIs(t, err, persistence.ErrConflict)
	})

	t.Run("different resources are independent", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		seedResource(t, store, "room-2", "Borealis")

		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)
		_, err = store.InsertReservation(ctx, reservation("res-b", "room-2", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)
	})

	t.Run("insert for unknown resource fails", func(t *testing.T) {
		store := newStore(t)
		_, err := store.InsertReservation(ctx, reservation("res-a", "ghost", "alice", span(10, 0, 11, 0)))
		assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)
	})

	t.Run("finds overlapping reservations excluding one id", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(9, 0, 10, 0)))
		require.NoError(t, err)
		_, err = store.InsertReservation(ctx, reservation("res-b", "room-1", "bob", span(10, 0, 11, 0)))
		require.NoError(t, err)

		found, err := store.FindOverlapping(ctx, "room-1", span(9, 30, 10, 30), "")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "res-a", found[0].ID)
		assert.Equal(t, "res-b", found[1].ID)

		found, err = store.FindOverlapping(ctx, "room-1", span(9, 30, 10, 30), "res-a")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "res-b", found[0].ID)

		found, err = store.FindOverlapping(ctx, "room-1", span(11, 0, 12, 0), "")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("replace excludes the reservation's own interval", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)

		updated, err := store.ReplaceReservationInterval(ctx, "res-a", span(10, 15, 11, 15), base.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, updated.Start.Equal(at(10, 15)))
		assert.True(t, updated.End.Equal(at(11, 15)))
		assert.Equal(t, "alice", updated.OwnerID)

		fetched, err := store.GetReservation(ctx, "res-a")
		require.NoError(t, err)
		assert.True(t, fetched.Start.Equal(at(10, 15)))
	})

	t.Run("replace into another reservation conflicts and keeps the original", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)
		_, err = store.InsertReservation(ctx, reservation("res-b", "room-1", "bob", span(11, 0, 12, 0)))
		require.NoError(t, err)

		_, err = store.ReplaceReservationInterval(ctx, "res-a", span(10, 30, 11, 30), base)
		assert.ErrorIs(t, err, persistence.ErrConflict)

		fetched, err := store.GetReservation(ctx, "res-a")
		require.NoError(t, err)
		assert.True(t, fetched.Start.Equal(at(10, 0)))
		assert.True(t, fetched.End.Equal(at(11, 0)))
	})

	t.Run("replace and delete of unknown reservation are not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.ReplaceReservationInterval(ctx, "ghost", span(10, 0, 11, 0), base)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		assert.ErrorIs(t, store.DeleteReservation(ctx, "ghost"), persistence.ErrNotFound)
	})

	t.Run("delete is not idempotent", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		_, err := store.InsertReservation(ctx, reservation("res-a", "room-1", "alice", span(10, 0, 11, 0)))
		require.NoError(t, err)

		require.NoError(t, store.DeleteReservation(ctx, "res-a"))
		assert.ErrorIs(t, store.DeleteReservation(ctx, "res-a"), persistence.ErrNotFound)

		_, err = store.InsertReservation(ctx, reservation("res-b", "room-1", "bob", span(10, 0, 11, 0)))
		require.NoError(t, err, "freed interval must be bookable again")
	})

	t.Run("lists by owner and all, ordered by start then id", func(t *testing.T) {
		store := newStore(t)
		seedResource(t, store, "room-1", "Aurora")
		seedResource(t, store, "room-2", "Borealis")
		for _, r := range []persistence.Reservation{
			reservation("res-3", "room-1", "alice", span(14, 0, 15, 0)),
			reservation("res-1", "room-1", "bob", span(9, 0, 10, 0)),
			reservation("res-2", "room-2", "alice", span(9, 0, 10, 0)),
		} {
			_, err := store.InsertReservation(ctx, r)
			require.NoError(t, err)
		}

		all, err := store.ListAllReservations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"res-1", "res-2", "res-3"}, ids(all))

		owned, err := store.ListReservationsByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"res-2", "res-3"}, ids(owned))
		for _, r := range owned {
			assert.Equal(t, time.UTC, r.Start.Location())
		}
	})
}

// testConcurrentInserts fires many overlapping inserts at one resource and
// checks that the accepted set is pairwise non-overlapping.
func testConcurrentInserts(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	seedResource(t, store, "room-1", "Aurora")
	seedResource(t, store, "room-2", "Borealis")

	const writers = 24
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []persistence.Reservation
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every window is 90 minutes wide, starting on a 30-minute grid,
			// so neighbours always overlap.
			start := at(8, 0).Add(time.Duration(i%8) * 30 * time.Minute)
			res := reservation(fmt.Sprintf("res-%02d", i), "room-1", "alice", scheduler.Interval{Start: start, End: start.Add(90 * time.Minute)})
			stored, err := store.InsertReservation(ctx, res)
			switch {
			case err == nil:
				mu.Lock()
				accepted = append(accepted, stored)
				mu.Unlock()
			case errors.Is(err, persistence.ErrConflict):
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.NotEmpty(t, accepted)
	for i := range accepted {
		for j := i + 1; j < len(accepted); j++ {
			assert.False(t, accepted[i].Interval().Overlaps(accepted[j].Interval()),
				"%s and %s overlap", accepted[i].ID, accepted[j].ID)
		}
	}

	all, err := store.ListAllReservations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(accepted))
}

// testDeleteRacingReplace runs a replace and a delete of the same reservation
// side by side. Whenever the delete succeeds the reservation must stay gone,
// whichever call wins.
func testDeleteRacingReplace(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	seedResource(t, store, "room-1", "Aurora")

	deletes := map[string]func(id string) error{
		"reservation": func(id string) error { return store.DeleteReservation(ctx, id) },
		"owner": func(id string) error {
			return store.DeleteUser(ctx, "owner-"+id)
		},
	}

	const rounds = 100
	for kind, remove := range deletes {
		for i := 0; i < rounds; i++ {
			id := fmt.Sprintf("%s-%03d", kind, i)
			require.NoError(t, store.CreateUser(ctx, persistence.User{ID: "owner-" + id, DisplayName: "Owner", Role: "USER", CreatedAt: base}))
			_, err := store.InsertReservation(ctx, reservation(id, "room-1", "owner-"+id, span(8, 0, 9, 0)))
			require.NoError(t, err)

			var (
				wg         sync.WaitGroup
				replaceErr error
				deleteErr  error
			)
			start := make(chan struct{})
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, replaceErr = store.ReplaceReservationInterval(ctx, id, span(10, 0, 11, 0), base.Add(time.Minute))
			}()
			go func() {
				defer wg.Done()
				<-start
				deleteErr = remove(id)
			}()
			close(start)
			wg.Wait()

			if replaceErr != nil && !errors.Is(replaceErr, persistence.ErrNotFound) && !errors.Is(replaceErr, persistence.ErrUnavailable) {
				t.Fatalf("%s round %d: unexpected replace error: %v", kind, i, replaceErr)
			}
			if deleteErr != nil {
				continue
			}
			_, err = store.GetReservation(ctx, id)
			require.ErrorIs(t, err, persistence.ErrNotFound, "%s round %d: deleted reservation came back", kind, i)
		}
	}
}

func ids(reservations []persistence.Reservation) []string {
	out := make([]string, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, r.ID)
	}
	return out
}
