package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"start_time": "required", "end_time": "must be after start_time"}}
	want := "validation failed: end_time: must be after start_time; start_time: required"
	if got := withFields.Error(); got != want {
		t.Fatalf("expected fields in sorted order, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	base.add("first", "ignored")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected first message to win, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestForbiddenSentinelsShareParent(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrInsufficientRole, ErrNotOwner} {
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected %v to wrap ErrForbidden", err)
		}
	}
	if !errors.Is(ErrResourceNotFound, ErrNotFound) {
		t.Fatalf("expected ErrResourceNotFound to wrap ErrNotFound")
	}
}

func TestDenial(t *testing.T) {
	t.Parallel()

	tests := map[authz.Reason]error{
		authz.ReasonUnauthenticated:  ErrUnauthenticated,
		authz.ReasonNotOwner:         ErrNotOwner,
		authz.ReasonInsufficientRole: ErrInsufficientRole,
		authz.ReasonUnknownOperation: ErrInsufficientRole,
	}
	for reason, want := range tests {
		if got := denial(authz.Deny(reason)); !errors.Is(got, want) {
			t.Fatalf("denial(%s) = %v, want %v", reason, got, want)
		}
	}
}

func TestMapStoreError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"not found", fmt.Errorf("get: %w", persistence.ErrNotFound), ErrNotFound},
		{"duplicate", persistence.ErrDuplicate, ErrAlreadyExists},
		{"unavailable", persistence.ErrUnavailable, ErrTemporarilyUnavailable},
		{"deadline", context.DeadlineExceeded, ErrTemporarilyUnavailable},
		{"busy", errors.New("database is locked (5) (SQLITE_BUSY)"), ErrTemporarilyUnavailable},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapStoreError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("mapStoreError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	other := errors.New("boom")
	if got := mapStoreError(other); got != other {
		t.Fatalf("expected unknown errors to pass through, got %v", got)
	}
}
