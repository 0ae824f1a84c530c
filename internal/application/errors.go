package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/persistence"
)

var (
	// ErrUnauthenticated is returned when no identity was resolved for the caller.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrForbidden is the parent of every policy denial.
	ErrForbidden = errors.New("application: forbidden")
	// ErrInsufficientRole is returned when the operation requires the administrator role.
	ErrInsufficientRole = fmt.Errorf("%w: insufficient role", ErrForbidden)
	// ErrNotOwner is returned when a non-administrator acts on another subject's reservation.
	ErrNotOwner = fmt.Errorf("%w: not owner", ErrForbidden)
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrResourceNotFound is returned when a reservation references an unknown resource.
	ErrResourceNotFound = fmt.Errorf("%w: resource", ErrNotFound)
	// ErrRoomUnavailable is returned when the interval overlaps an existing reservation.
	ErrRoomUnavailable = errors.New("application: room unavailable")
	// ErrTemporarilyUnavailable is returned when the store or cache could not be reached in time.
	ErrTemporarilyUnavailable = errors.New("application: temporarily unavailable")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// denial converts a policy denial into the matching sentinel.
func denial(decision authz.Decision) error {
	switch decision.Reason() {
	case authz.ReasonUnauthenticated:
		return ErrUnauthenticated
	case authz.ReasonNotOwner:
		return ErrNotOwner
	default:
		return ErrInsufficientRole
	}
}

// mapStoreError translates persistence failures shared by every service.
// Callers handle the domain specific sentinels before delegating here.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrUnavailable), errors.Is(err, context.DeadlineExceeded), persistence.IsTransient(err):
		return fmt.Errorf("%w: %v", ErrTemporarilyUnavailable, err)
	}
	return err
}
