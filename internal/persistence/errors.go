package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a reservation write would overlap an existing reservation.
	ErrConflict = errors.New("persistence: reservation conflict")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a record fails a column constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record does not exist.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrUnavailable marks transient failures of the underlying store.
	ErrUnavailable = errors.New("persistence: store unavailable")
)
