package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/events"
	"github.com/example/roombook/internal/metrics"
	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/scheduler"
)

// DefaultStoreTimeout bounds every store call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// ReservationStore captures the persistence operations needed by the engine.
// InsertReservation and ReplaceReservationInterval must check overlaps and
// write atomically per resource.
type ReservationStore interface {
	FindOverlapping(ctx context.Context, resourceID string, interval scheduler.Interval, excludeID string) ([]Reservation, error)
	InsertReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	ReplaceReservationInterval(ctx context.Context, id string, interval scheduler.Interval, updatedAt time.Time) (Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservationsByOwner(ctx context.Context, ownerID string) ([]Reservation, error)
	ListAllReservations(ctx context.Context) ([]Reservation, error)
}

// ResourceLookup resolves a resource from the authoritative store.
type ResourceLookup interface {
	GetResource(ctx context.Context, id string) (Resource, error)
}

// ResourceCatalog is the read side of the resource catalog cache.
type ResourceCatalog interface {
	Get(ctx context.Context) ([]Resource, bool, error)
	Invalidate(ctx context.Context) error
}

// ReservationEngineDeps wires the engine's collaborators. Store and Resources
// are required; everything else has a usable default.
type ReservationEngineDeps struct {
	Store        ReservationStore
	Resources    ResourceLookup
	Catalog      ResourceCatalog
	Events       events.Publisher
	Policy       authz.Policy
	IDGenerator  func() string
	Now          func() time.Time
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// ReservationEngine enforces the no-overlap invariant and the authorization
// policy for every reservation operation.
type ReservationEngine struct {
	store        ReservationStore
	resources    ResourceLookup
	catalog      ResourceCatalog
	events       events.Publisher
	policy       authz.Policy
	idGenerator  func() string
	now          func() time.Time
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewReservationEngine constructs an engine from deps.
func NewReservationEngine(deps ReservationEngineDeps) *ReservationEngine {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = DefaultStoreTimeout
	}
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	return &ReservationEngine{
		store:        deps.Store,
		resources:    deps.Resources,
		catalog:      deps.Catalog,
		events:       deps.Events,
		policy:       deps.Policy,
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		storeTimeout: deps.StoreTimeout,
		logger:       defaultLogger(deps.Logger),
	}
}

func (e *ReservationEngine) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, e.logger, "ReservationEngine", operation, attrs...)
}

// bounded derives the per-call store context.
func (e *ReservationEngine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

// record observes one engine call in the metrics.
func record(operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
	}
	metrics.ReservationOperations.WithLabelValues(operation, outcome).Inc()
	metrics.ReservationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func subjectID(subject *authz.Subject) string {
	if subject == nil {
		return ""
	}
	return subject.ID
}

// Create books input.ResourceID for [input.Start, input.End) on behalf of the subject.
func (e *ReservationEngine) Create(ctx context.Context, params CreateReservationParams) (reservation Reservation, err error) {
	if e == nil {
		err = fmt.Errorf("ReservationEngine is nil")
		return
	}

	started := time.Now()
	logger := e.loggerWith(ctx, "Create",
		"subject_id", subjectID(params.Subject),
		"resource_id", params.Input.ResourceID,
	)
	defer func() {
		record("create", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to create reservation", err)
			return
		}
		logger.With("reservation_id", reservation.ID).InfoContext(ctx, "reservation created")
	}()

	if decision := e.policy.Decide(params.Subject, authz.CreateReservation, authz.Target{}); !decision.Allowed() {
		err = denial(decision)
		return
	}

	resourceID := strings.TrimSpace(params.Input.ResourceID)
	interval := scheduler.Interval{Start: params.Input.Start, End: params.Input.End}
	vErr := &ValidationError{}
	if resourceID == "" {
		vErr.add("resource_id", "is required")
	}
	vErr.merge(validateInterval(interval))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = e.ensureResource(ctx, resourceID); err != nil {
		return
	}

	now := e.now().UTC()
	candidate := Reservation{
		ID:         e.idGenerator(),
		ResourceID: resourceID,
		OwnerID:    params.Subject.ID,
		Start:      interval.Start.UTC(),
		End:        interval.End.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()
	reservation, err = e.store.InsertReservation(storeCtx, candidate)
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	e.publish(ctx, events.ReservationCreated, reservation)
	return
}

// Update moves an existing reservation to a new interval. The reservation's
// own prior interval never counts as a conflict.
func (e *ReservationEngine) Update(ctx context.Context, params UpdateReservationParams) (reservation Reservation, err error) {
	if e == nil {
		err = fmt.Errorf("ReservationEngine is nil")
		return
	}

	started := time.Now()
	logger := e.loggerWith(ctx, "Update",
		"subject_id", subjectID(params.Subject),
		"reservation_id", params.ReservationID,
	)
	defer func() {
		record("update", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to update reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation updated")
	}()

	var existing Reservation
	existing, err = e.loadAuthorized(ctx, params.Subject, authz.UpdateReservation, params.ReservationID)
	if err != nil {
		return
	}

	interval := scheduler.Interval{Start: params.Input.Start, End: params.Input.End}
	if vErr := validateInterval(interval); vErr.HasErrors() {
		err = vErr
		return
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()
	reservation, err = e.store.ReplaceReservationInterval(storeCtx, existing.ID, interval.UTC(), e.now().UTC())
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	e.publish(ctx, events.ReservationUpdated, reservation)
	return
}

// Delete removes a reservation owned by the subject, or any reservation for
// administrators. Deleting an unknown id reports ErrNotFound.
func (e *ReservationEngine) Delete(ctx context.Context, subject *authz.Subject, reservationID string) (err error) {
	if e == nil {
		return fmt.Errorf("ReservationEngine is nil")
	}

	started := time.Now()
	logger := e.loggerWith(ctx, "Delete",
		"subject_id", subjectID(subject),
		"reservation_id", reservationID,
	)
	defer func() {
		record("delete", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to delete reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation deleted")
	}()

	existing, err := e.loadAuthorized(ctx, subject, authz.DeleteReservation, reservationID)
	if err != nil {
		return err
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()
	if err = e.store.DeleteReservation(storeCtx, existing.ID); err != nil {
		err = mapReservationRepoError(err)
		return err
	}

	e.events.Publish(ctx, reservationDeleted(existing, e.now()))
	return nil
}

// Get returns one reservation visible to the subject.
func (e *ReservationEngine) Get(ctx context.Context, subject *authz.Subject, reservationID string) (reservation Reservation, err error) {
	if e == nil {
		err = fmt.Errorf("ReservationEngine is nil")
		return
	}

	started := time.Now()
	defer func() {
		record("get", started, err)
		if err != nil {
			logFailure(ctx, e.loggerWith(ctx, "Get", "subject_id", subjectID(subject), "reservation_id", reservationID), "failed to get reservation", err)
		}
	}()

	reservation, err = e.loadAuthorized(ctx, subject, authz.GetReservation, reservationID)
	return
}

// List returns every reservation for administrators and the subject's own
// reservations otherwise, ordered by start time then id.
func (e *ReservationEngine) List(ctx context.Context, subject *authz.Subject) (reservations []Reservation, err error) {
	if e == nil {
		err = fmt.Errorf("ReservationEngine is nil")
		return
	}

	started := time.Now()
	logger := e.loggerWith(ctx, "List", "subject_id", subjectID(subject))
	defer func() {
		record("list", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to list reservations", err)
			return
		}
		logger.With("result_count", len(reservations)).DebugContext(ctx, "reservations listed")
	}()

	if subject == nil || subject.ID == "" {
		err = ErrUnauthenticated
		return
	}
	if decision := e.policy.Decide(subject, authz.ListReservations, authz.Target{}); !decision.Allowed() {
		err = denial(decision)
		return
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()

	var raw []Reservation
	if subject.IsAdmin() {
		raw, err = e.store.ListAllReservations(storeCtx)
	} else {
		raw, err = e.store.ListReservationsByOwner(storeCtx, subject.ID)
	}
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	reservations = make([]Reservation, len(raw))
	copy(reservations, raw)
	sortReservations(reservations)
	return
}

// CheckAvailability reports whether the resource is free for the interval.
// It never reveals who holds a conflicting reservation.
func (e *ReservationEngine) CheckAvailability(ctx context.Context, query AvailabilityQuery) (available bool, err error) {
	if e == nil {
		err = fmt.Errorf("ReservationEngine is nil")
		return
	}

	started := time.Now()
	logger := e.loggerWith(ctx, "CheckAvailability",
		"subject_id", subjectID(query.Subject),
		"resource_id", query.ResourceID,
	)
	defer func() {
		record("check_availability", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to check availability", err)
		}
	}()

	if decision := e.policy.Decide(query.Subject, authz.CheckAvailability, authz.Target{}); !decision.Allowed() {
		err = denial(decision)
		return
	}

	interval := scheduler.Interval{Start: query.Start, End: query.End}
	if vErr := validateInterval(interval); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = e.ensureResource(ctx, query.ResourceID); err != nil {
		return
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()
	overlapping, err := e.store.FindOverlapping(storeCtx, query.ResourceID, interval.UTC(), "")
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}
	return len(overlapping) == 0, nil
}

// loadAuthorized fetches a reservation and evaluates op against its owner.
// Anonymous callers are rejected before the lookup so that they cannot learn
// which ids exist.
func (e *ReservationEngine) loadAuthorized(ctx context.Context, subject *authz.Subject, op authz.Operation, reservationID string) (Reservation, error) {
	if subject == nil || subject.ID == "" {
		return Reservation{}, ErrUnauthenticated
	}
	if strings.TrimSpace(reservationID) == "" {
		return Reservation{}, ErrNotFound
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()
	existing, err := e.store.GetReservation(storeCtx, reservationID)
	if err != nil {
		return Reservation{}, mapReservationRepoError(err)
	}

	if decision := e.policy.Decide(subject, op, authz.Target{OwnerID: existing.OwnerID}); !decision.Allowed() {
		return Reservation{}, denial(decision)
	}
	return existing, nil
}

// ensureResource checks that resourceID exists. A catalog hit is trusted as a
// hint; the store decides otherwise. Inserts still fail on a foreign key if
// the resource disappears in between.
func (e *ReservationEngine) ensureResource(ctx context.Context, resourceID string) error {
	if e.catalog != nil {
		if resources, _, err := e.catalog.Get(ctx); err == nil {
			for _, r := range resources {
				if r.ID == resourceID {
					return nil
				}
			}
		}
	}
	if e.resources == nil {
		return nil
	}

	storeCtx, cancel := e.bounded(ctx)
	defer cancel()
	if _, err := e.resources.GetResource(storeCtx, resourceID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrResourceNotFound
		}
		return mapStoreError(err)
	}
	return nil
}

func (e *ReservationEngine) publish(ctx context.Context, typ events.Type, r Reservation) {
	payload := &events.ReservationPayload{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		OwnerID:    r.OwnerID,
		StartTime:  r.Start,
		EndTime:    r.End,
	}
	e.events.Publish(ctx, events.New(typ, r.ID, r.ResourceID, payload, e.now()))
}

func mapReservationRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrConflict):
		return ErrRoomUnavailable
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrResourceNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("end_time", "must be after start_time")
		return vErr
	}
	return mapStoreError(err)
}

func sortReservations(reservations []Reservation) {
	sort.SliceStable(reservations, func(i, j int) bool {
		if reservations[i].Start.Equal(reservations[j].Start) {
			return reservations[i].ID < reservations[j].ID
		}
		return reservations[i].Start.Before(reservations[j].Start)
	})
}
