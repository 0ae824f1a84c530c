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
	"github.com/example/roombook/internal/persistence"
)

// ResourceRepository captures the persistence operations needed by the service.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) error
	UpdateResource(ctx context.Context, resource Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

// ResourceService orchestrates validation, authorization, persistence and
// catalog invalidation for resources.
type ResourceService struct {
	resources    ResourceRepository
	catalog      ResourceCatalog
	policy       authz.Policy
	idGenerator  func() string
	now          func() time.Time
	storeTimeout time.Duration
	logger       *slog.Logger
	cascade      cascadeNotifier
}

// NewResourceService constructs a resource service with the provided dependencies.
func NewResourceService(resources ResourceRepository, catalog ResourceCatalog, idGenerator func() string, now func() time.Time) *ResourceService {
	return NewResourceServiceWithLogger(resources, catalog, idGenerator, now, DefaultStoreTimeout, nil)
}

// NewResourceServiceWithLogger constructs a resource service with a specified logger.
func NewResourceServiceWithLogger(resources ResourceRepository, catalog ResourceCatalog, idGenerator func() string, now func() time.Time, storeTimeout time.Duration, logger *slog.Logger) *ResourceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &ResourceService{
		resources:    resources,
		catalog:      catalog,
		idGenerator:  idGenerator,
		now:          now,
		storeTimeout: storeTimeout,
		logger:       defaultLogger(logger),
	}
}

// WithCascadeEvents makes DeleteResource publish ReservationDeleted for every
// reservation removed along with the resource.
func (s *ResourceService) WithCascadeEvents(reservations ReservationLister, publisher events.Publisher) *ResourceService {
	s.cascade = cascadeNotifier{reservations: reservations, events: publisher}
	return s
}

func (s *ResourceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ResourceService", operation, attrs...)
}

func (s *ResourceService) authorize(subject *authz.Subject, op authz.Operation) error {
	if decision := s.policy.Decide(subject, op, authz.Target{}); !decision.Allowed() {
		return denial(decision)
	}
	return nil
}

// CreateResource validates input and persists a new resource for administrators.
func (s *ResourceService) CreateResource(ctx context.Context, params CreateResourceParams) (resource Resource, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateResource", "subject_id", subjectID(params.Subject))
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create resource", err)
			return
		}
		logger.With("resource_id", resource.ID).InfoContext(ctx, "resource created")
	}()

	if err = s.authorize(params.Subject, authz.CreateResource); err != nil {
		return
	}

	input := normalizeResourceInput(params.Input)
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	resource = Resource{
		ID:        s.idGenerator(),
		Name:      input.Name,
		Capacity:  input.Capacity,
		Category:  input.Category,
		CreatedAt: s.now().UTC(),
	}
	resource.UpdatedAt = resource.CreatedAt

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err = s.resources.CreateResource(storeCtx, resource); err != nil {
		err = mapResourceRepoError(err)
		return
	}

	s.invalidate(ctx, logger)
	return
}

// UpdateResource replaces the mutable fields of an existing resource.
func (s *ResourceService) UpdateResource(ctx context.Context, params UpdateResourceParams) (resource Resource, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateResource",
		"subject_id", subjectID(params.Subject),
		"resource_id", params.ResourceID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to update resource", err)
			return
		}
		logger.InfoContext(ctx, "resource updated")
	}()

	if err = s.authorize(params.Subject, authz.UpdateResource); err != nil {
		return
	}

	input := normalizeResourceInput(params.Input)
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var existing Resource
	existing, err = s.resources.GetResource(storeCtx, params.ResourceID)
	if err != nil {
		err = mapResourceRepoError(err)
		return
	}

	resource = existing
	resource.Name = input.Name
	resource.Capacity = input.Capacity
	resource.Category = input.Category
	resource.UpdatedAt = s.now().UTC()

	if err = s.resources.UpdateResource(storeCtx, resource); err != nil {
		err = mapResourceRepoError(err)
		return
	}

	s.invalidate(ctx, logger)
	return
}

// DeleteResource removes a resource and, with it, every reservation on it.
func (s *ResourceService) DeleteResource(ctx context.Context, subject *authz.Subject, resourceID string) (err error) {
	if s == nil {
		return fmt.Errorf("ResourceService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteResource",
		"subject_id", subjectID(subject),
		"resource_id", resourceID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to delete resource", err)
			return
		}
		logger.InfoContext(ctx, "resource deleted")
	}()

	if err = s.authorize(subject, authz.DeleteResource); err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	doomed, err := s.cascade.onResource(storeCtx, resourceID)
	if err != nil {
		err = mapResourceRepoError(err)
		return err
	}
	if err = s.resources.DeleteResource(storeCtx, resourceID); err != nil {
		err = mapResourceRepoError(err)
		return err
	}

	s.invalidate(ctx, logger)
	s.cascade.publish(ctx, doomed, s.now())
	return nil
}

// ListResources returns the catalog for any caller, ordered by name then id.
// fromCache reports whether the snapshot came from the catalog cache.
func (s *ResourceService) ListResources(ctx context.Context) (resources []Resource, fromCache bool, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListResources")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to list resources", err)
			return
		}
		logger.With("result_count", len(resources), "from_cache", fromCache).DebugContext(ctx, "resources listed")
	}()

	var raw []Resource
	if s.catalog != nil {
		raw, fromCache, err = s.catalog.Get(ctx)
	} else {
		raw, err = s.loadResources(ctx)
	}
	if err != nil {
		err = mapResourceRepoError(err)
		return
	}

	resources = make([]Resource, len(raw))
	copy(resources, raw)
	sortResources(resources)
	return
}

// loadResources reads the catalog straight from the store when no cache is wired.
func (s *ResourceService) loadResources(ctx context.Context) ([]Resource, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	resources, err := s.resources.ListResources(storeCtx)
	if err != nil {
		return nil, err
	}
	sortResources(resources)
	return resources, nil
}

// GetResource returns one resource for any caller.
func (s *ResourceService) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	if s == nil {
		return Resource{}, fmt.Errorf("ResourceService is nil")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	resource, err := s.resources.GetResource(storeCtx, resourceID)
	if err != nil {
		err = mapResourceRepoError(err)
		if !errors.Is(err, ErrNotFound) {
			logFailure(ctx, s.loggerWith(ctx, "GetResource", "resource_id", resourceID), "failed to get resource", err)
		}
		return Resource{}, err
	}
	return resource, nil
}

// invalidate evicts the catalog snapshot after a successful write. Failures
// are logged and swallowed; the TTL bounds the resulting staleness.
func (s *ResourceService) invalidate(ctx context.Context, logger *slog.Logger) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Invalidate(ctx); err != nil {
		logger.WarnContext(ctx, "catalog invalidation failed", "error", err)
	}
}

func normalizeResourceInput(input ResourceInput) ResourceInput {
	return ResourceInput{
		Name:     strings.TrimSpace(input.Name),
		Capacity: input.Capacity,
		Category: strings.ToLower(strings.TrimSpace(input.Category)),
	}
}

func mapResourceRepoError(err error) error {
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("capacity", "must be at least 1")
		return vErr
	}
	return mapStoreError(err)
}

func sortResources(resources []Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		if resources[i].Name == resources[j].Name {
			return resources[i].ID < resources[j].ID
		}
		return resources[i].Name < resources[j].Name
	})
}
