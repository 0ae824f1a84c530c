package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/roombook/internal/scheduler"
)

// RetryConfig configures retry behaviour for idempotent reads.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a retry configuration with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryHelper retries a function while it fails with a transient error.
type RetryHelper struct {
	config RetryConfig
}

// NewRetryHelper creates a new retry helper.
func NewRetryHelper(config RetryConfig) *RetryHelper {
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &RetryHelper{config: config}
}

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// WithRetry executes fn, retrying transient failures with exponential backoff.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn RetryableFunc) error {
	var lastErr error
	delay := rh.config.InitialDelay

	for attempt := 0; attempt <= rh.config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * rh.config.BackoffFactor)
			if rh.config.MaxDelay > 0 && delay > rh.config.MaxDelay {
				delay = rh.config.MaxDelay
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", rh.config.MaxRetries, lastErr)
}

// IsTransient reports whether err is worth retrying for an idempotent read.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrForeignKeyViolation) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "database locked", "sqlite_busy", "database is busy", "connection refused", "connection reset", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryingStore retries the idempotent reads of the wrapped store.
// Writes pass straight through and are never retried.
type RetryingStore struct {
	Store
	retry *RetryHelper
}

// NewRetryingStore wraps store so that its reads are retried per config.
func NewRetryingStore(store Store, config RetryConfig) *RetryingStore {
	return &RetryingStore{Store: store, retry: NewRetryHelper(config)}
}

func retryValue[T any](ctx context.Context, rh *RetryHelper, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := rh.WithRetry(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (s *RetryingStore) GetUser(ctx context.Context, id string) (User, error) {
	return retryValue(ctx, s.retry, func(ctx context.Context) (User, error) { return s.Store.GetUser(ctx, id) })
}

func (s *RetryingStore) ListUsers(ctx context.Context) ([]User, error) {
	return retryValue(ctx, s.retry, s.Store.ListUsers)
}

func (s *RetryingStore) GetResource(ctx context.Context, id string) (Resource, error) {
	return retryValue(ctx, s.retry, func(ctx context.Context) (Resource, error) { return s.Store.GetResource(ctx, id) })
}

func (s *RetryingStore) ListResources(ctx context.Context) ([]Resource, error) {
	return retryValue(ctx, s.retry, s.Store.ListResources)
}

func (s *RetryingStore) FindOverlapping(ctx context.Context, resourceID string, interval scheduler.Interval, excludeID string) ([]Reservation, error) {
	return retryValue(ctx, s.retry, func(ctx context.Context) ([]Reservation, error) {
		return s.Store.FindOverlapping(ctx, resourceID, interval, excludeID)
	})
}

func (s *RetryingStore) GetReservation(ctx context.Context, id string) (Reservation, error) {
	return retryValue(ctx, s.retry, func(ctx context.Context) (Reservation, error) { return s.Store.GetReservation(ctx, id) })
}

func (s *RetryingStore) ListReservationsByOwner(ctx context.Context, ownerID string) ([]Reservation, error) {
	return retryValue(ctx, s.retry, func(ctx context.Context) ([]Reservation, error) {
		return s.Store.ListReservationsByOwner(ctx, ownerID)
	})
}

func (s *RetryingStore) ListAllReservations(ctx context.Context) ([]Reservation, error) {
	return retryValue(ctx, s.retry, s.Store.ListAllReservations)
}
