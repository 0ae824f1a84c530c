// Package memory provides an in-process persistence.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/scheduler"
)

// Storage keeps every record in maps guarded by an RWMutex. Reservation writes
// additionally hold a per-resource lock across the overlap check and the write.
type Storage struct {
	mu           sync.RWMutex
	users        map[string]persistence.User
	resources    map[string]persistence.Resource
	reservations map[string]persistence.Reservation

	resourceLocks *keyedMutex
}

var _ persistence.Store = (*Storage)(nil)

// Open returns a new empty Storage.
func Open() *Storage {
	return &Storage{
		users:         make(map[string]persistence.User),
		resources:     make(map[string]persistence.Resource),
		reservations:  make(map[string]persistence.Reservation),
		resourceLocks: newKeyedMutex(),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	user.CreatedAt = user.CreatedAt.UTC()
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// ListUsers returns all users ordered by CreatedAt ascending.
func (s *Storage) ListUsers(ctx context.Context) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]persistence.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// DeleteUser removes a user and the reservations they own.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.users, id)
	for resID, r := range s.reservations {
		if r.OwnerID == id {
			delete(s.reservations, resID)
		}
	}
	return nil
}

// --- ResourceRepository implementation ---

// CreateResource stores a new resource. Names are unique.
func (s *Storage) CreateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[resource.ID]; ok {
		return persistence.ErrDuplicate
	}
	if s.nameTakenLocked(resource.ID, resource.Name) {
		return persistence.ErrDuplicate
	}
	s.resources[resource.ID] = normalizeResource(resource)
	return nil
}

// UpdateResource replaces the mutable fields of an existing resource.
func (s *Storage) UpdateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.resources[resource.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if s.nameTakenLocked(resource.ID, resource.Name) {
		return persistence.ErrDuplicate
	}
	resource.CreatedAt = existing.CreatedAt
	s.resources[resource.ID] = normalizeResource(resource)
	return nil
}

// GetResource retrieves a resource by ID.
func (s *Storage) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resource, ok := s.resources[id]
	if !ok {
		return persistence.Resource{}, persistence.ErrNotFound
	}
	return resource, nil
}

// ListResources returns all resources ordered by name then ID.
func (s *Storage) ListResources(ctx context.Context) ([]persistence.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := make([]persistence.Resource, 0, len(s.resources))
	for _, resource := range s.resources {
		resources = append(resources, resource)
	}
	sort.Slice(resources, func(i, j int) bool {
		if resources[i].Name == resources[j].Name {
			return resources[i].ID < resources[j].ID
		}
		return resources[i].Name < resources[j].Name
	})
	return resources, nil
}

// DeleteResource removes a resource and its reservations.
func (s *Storage) DeleteResource(ctx context.Context, id string) error {
	unlock := s.resourceLocks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.resources, id)
	for resID, r := range s.reservations {
		if r.ResourceID == id {
			delete(s.reservations, resID)
		}
	}
	return nil
}

func (s *Storage) nameTakenLocked(id, name string) bool {
	for _, other := range s.resources {
		if other.ID != id && other.Name == name {
			return true
		}
	}
	return false
}

// --- ReservationRepository implementation ---

// FindOverlapping returns reservations on resourceID overlapping interval.
func (s *Storage) FindOverlapping(ctx context.Context, resourceID string, interval scheduler.Interval, excludeID string) ([]persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlappingLocked(resourceID, interval, excludeID), nil
}

// InsertReservation stores reservation unless it overlaps another on the same resource.
func (s *Storage) InsertReservation(ctx context.Context, reservation persistence.Reservation) (persistence.Reservation, error) {
	if err := reservation.Interval().Validate(); err != nil {
		return persistence.Reservation{}, persistence.ErrConstraintViolation
	}

	unlock := s.resourceLocks.Lock(reservation.ResourceID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return persistence.Reservation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, resourceExists := s.resources[reservation.ResourceID]
	_, idTaken := s.reservations[reservation.ID]
	switch {
	case !resourceExists:
		return persistence.Reservation{}, persistence.ErrForeignKeyViolation
	case idTaken:
		return persistence.Reservation{}, persistence.ErrDuplicate
	case len(s.overlappingLocked(reservation.ResourceID, reservation.Interval(), "")) > 0:
		return persistence.Reservation{}, persistence.ErrConflict
	}

	stored := normalizeReservation(reservation)
	s.reservations[stored.ID] = stored
	return stored, nil
}

// ReplaceReservationInterval moves a reservation to interval, ignoring its own prior state.
func (s *Storage) ReplaceReservationInterval(ctx context.Context, id string, interval scheduler.Interval, updatedAt time.Time) (persistence.Reservation, error) {
	if err := interval.Validate(); err != nil {
		return persistence.Reservation{}, persistence.ErrConstraintViolation
	}

	s.mu.RLock()
	current, ok := s.reservations[id]
	s.mu.RUnlock()
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}

	unlock := s.resourceLocks.Lock(current.ResourceID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return persistence.Reservation{}, err
	}

	// The existence re-check and the write share one critical section so that
	// a concurrent delete cannot be undone.
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok = s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	if len(s.overlappingLocked(current.ResourceID, interval, id)) > 0 {
		return persistence.Reservation{}, persistence.ErrConflict
	}

	current.Start = interval.Start
	current.End = interval.End
	current.UpdatedAt = updatedAt
	stored := normalizeReservation(current)
	s.reservations[id] = stored
	return stored, nil
}

// DeleteReservation removes a reservation by ID.
func (s *Storage) DeleteReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.reservations, id)
	return nil
}

// GetReservation retrieves a reservation by ID.
func (s *Storage) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return r, nil
}

// ListReservationsByOwner returns the reservations owned by ownerID.
func (s *Storage) ListReservationsByOwner(ctx context.Context, ownerID string) ([]persistence.Reservation, error) {
	return s.listReservations(func(r persistence.Reservation) bool { return r.OwnerID == ownerID }), nil
}

// ListAllReservations returns every reservation.
func (s *Storage) ListAllReservations(ctx context.Context) ([]persistence.Reservation, error) {
	return s.listReservations(func(persistence.Reservation) bool { return true }), nil
}

func (s *Storage) listReservations(keep func(persistence.Reservation) bool) []persistence.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Reservation, 0)
	for _, r := range s.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out
}

func (s *Storage) overlappingLocked(resourceID string, interval scheduler.Interval, excludeID string) []persistence.Reservation {
	bookings := make([]scheduler.Booking, 0)
	for _, r := range s.reservations {
		if r.ResourceID == resourceID {
			bookings = append(bookings, r.Booking())
		}
	}
	conflicts := scheduler.Conflicts(bookings, scheduler.Booking{ID: excludeID, ResourceID: resourceID, Interval: interval})
	out := make([]persistence.Reservation, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, s.reservations[c.ID])
	}
	return out
}

func sortReservations(reservations []persistence.Reservation) {
	sort.Slice(reservations, func(i, j int) bool {
		if reservations[i].Start.Equal(reservations[j].Start) {
			return reservations[i].ID < reservations[j].ID
		}
		return reservations[i].Start.Before(reservations[j].Start)
	})
}

func normalizeResource(r persistence.Resource) persistence.Resource {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r
}

func normalizeReservation(r persistence.Reservation) persistence.Reservation {
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r
}
