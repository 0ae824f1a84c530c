package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/roombook/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool *ConnectionPool
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateUser inserts a new user into the directory.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (id, display_name, role, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.DisplayName, user.Role, formatTime(user.CreatedAt))
	return mapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, display_name, role, created_at
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

// ListUsers returns all users ordered by creation time then ID.
func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, display_name, role, created_at
		FROM users
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	users := make([]persistence.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// DeleteUser removes a user and every reservation they own.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reservations WHERE owner_id = ?", id); err != nil {
			return mapError(err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
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
	})
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user      persistence.User
		createdAt string
	)
	if err := row.Scan(&user.ID, &user.DisplayName, &user.Role, &createdAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	var err error
	if user.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
