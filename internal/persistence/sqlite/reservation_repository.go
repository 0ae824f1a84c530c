package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/scheduler"
)

// maxVersionAttempts bounds how often a write unit is replayed after losing
// the reservation_version compare-and-swap to a concurrent writer.
const maxVersionAttempts = 3

// errVersionMoved signals a lost compare-and-swap; the unit is replayed.
var errVersionMoved = errors.New("sqlite: reservation version moved")

const reservationColumns = `id, resource_id, owner_id, start_at, end_at, created_at, updated_at`

// ReservationRepository implements persistence.ReservationRepository using SQLite.
//
// Every write reads resources.reservation_version, checks for overlaps,
// writes, and then bumps the version only if it is unchanged. Another
// process that wrote to the same resource in between makes the bump miss,
// and the whole unit is rolled back and replayed.
type ReservationRepository struct {
	pool *ConnectionPool
}

// NewReservationRepository creates a new SQLite reservation repository
func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// FindOverlapping returns reservations on resourceID whose interval overlaps interval.
func (r *ReservationRepository) FindOverlapping(ctx context.Context, resourceID string, interval scheduler.Interval, excludeID string) ([]persistence.Reservation, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE resource_id = ? AND start_at < ? AND end_at > ? AND id <> ?
		ORDER BY start_at ASC, id ASC
	`, resourceID, formatTime(interval.End), formatTime(interval.Start), excludeID)
	if err != nil {
		return nil, mapError(err)
	}
	return collectReservations(rows)
}

// InsertReservation stores reservation unless it overlaps another on the same resource.
func (r *ReservationRepository) InsertReservation(ctx context.Context, reservation persistence.Reservation) (persistence.Reservation, error) {
	if err := reservation.Interval().Validate(); err != nil {
		return persistence.Reservation{}, persistence.ErrConstraintViolation
	}

	err := r.withResourceVersion(ctx, reservation.ResourceID, func(tx *sql.Tx) error {
		if err := checkOverlap(ctx, tx, reservation.ResourceID, reservation.Interval(), ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			reservation.ID,
			reservation.ResourceID,
			reservation.OwnerID,
			formatTime(reservation.Start),
			formatTime(reservation.End),
			formatTime(reservation.CreatedAt),
			formatTime(reservation.UpdatedAt),
		)
		return mapError(err)
	})
	if err != nil {
		return persistence.Reservation{}, err
	}
	return normalize(reservation), nil
}

// ReplaceReservationInterval moves reservation id to interval, excluding its own prior state from the overlap check.
func (r *ReservationRepository) ReplaceReservationInterval(ctx context.Context, id string, interval scheduler.Interval, updatedAt time.Time) (persistence.Reservation, error) {
	if err := interval.Validate(); err != nil {
		return persistence.Reservation{}, persistence.ErrConstraintViolation
	}

	current, err := r.GetReservation(ctx, id)
	if err != nil {
		return persistence.Reservation{}, err
	}

	var updated persistence.Reservation
	err = r.withResourceVersion(ctx, current.ResourceID, func(tx *sql.Tx) error {
		if err := checkOverlap(ctx, tx, current.ResourceID, interval, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE reservations
			SET start_at = ?, end_at = ?, updated_at = ?
			WHERE id = ? AND resource_id = ?
		`, formatTime(interval.Start), formatTime(interval.End), formatTime(updatedAt), id, current.ResourceID)
		if err != nil {
			return mapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}

		updated, err = scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return persistence.Reservation{}, err
	}
	return updated, nil
}

// DeleteReservation removes a reservation by ID.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.pool.DB().ExecContext(ctx, "DELETE FROM reservations WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetReservation retrieves a reservation by ID.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	if id == "" {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	return scanReservation(row)
}

// ListReservationsByOwner returns reservations owned by ownerID ordered by start then ID.
func (r *ReservationRepository) ListReservationsByOwner(ctx context.Context, ownerID string) ([]persistence.Reservation, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE owner_id = ?
		ORDER BY start_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, mapError(err)
	}
	return collectReservations(rows)
}

// ListAllReservations returns every reservation ordered by start then ID.
func (r *ReservationRepository) ListAllReservations(ctx context.Context) ([]persistence.Reservation, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		ORDER BY start_at ASC, id ASC
	`)
	if err != nil {
		return nil, mapError(err)
	}
	return collectReservations(rows)
}

// withResourceVersion runs fn inside a transaction guarded by the resource's
// reservation_version, replaying it when the version moved underneath.
func (r *ReservationRepository) withResourceVersion(ctx context.Context, resourceID string, fn TransactionFunc) error {
	var lastErr error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var version int64
			err := tx.QueryRowContext(ctx, "SELECT reservation_version FROM resources WHERE id = ?", resourceID).Scan(&version)
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrForeignKeyViolation
			}
			if err != nil {
				return mapError(err)
			}

			if err := fn(tx); err != nil {
				return err
			}

			result, err := tx.ExecContext(ctx, `
				UPDATE resources SET reservation_version = ?
				WHERE id = ? AND reservation_version = ?
			`, version+1, resourceID, version)
			if err != nil {
				return mapError(err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rowsAffected == 0 {
				return errVersionMoved
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionMoved) && !errors.Is(err, persistence.ErrUnavailable) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: resource %s: %v", persistence.ErrUnavailable, resourceID, lastErr)
}

func checkOverlap(ctx context.Context, tx *sql.Tx, resourceID string, interval scheduler.Interval, excludeID string) error {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM reservations
		WHERE resource_id = ? AND start_at < ? AND end_at > ? AND id <> ?
	`, resourceID, formatTime(interval.End), formatTime(interval.Start), excludeID).Scan(&count)
	if err != nil {
		return mapError(err)
	}
	if count > 0 {
		return persistence.ErrConflict
	}
	return nil
}

func collectReservations(rows *sql.Rows) ([]persistence.Reservation, error) {
	defer rows.Close()

	reservations := make([]persistence.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return reservations, nil
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		reservation                          persistence.Reservation
		startAt, endAt, createdAt, updatedAt string
	)
	err := row.Scan(
		&reservation.ID,
		&reservation.ResourceID,
		&reservation.OwnerID,
		&startAt,
		&endAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Reservation{}, mapError(err)
	}

	if reservation.Start, err = parseTime("start_at", startAt); err != nil {
		return persistence.Reservation{}, err
	}
	if reservation.End, err = parseTime("end_at", endAt); err != nil {
		return persistence.Reservation{}, err
	}
	if reservation.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Reservation{}, err
	}
	if reservation.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Reservation{}, err
	}
	return reservation, nil
}

func normalize(r persistence.Reservation) persistence.Reservation {
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r
}
