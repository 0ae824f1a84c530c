package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/roombook/internal/persistence"
)

// ResourceRepository implements persistence.ResourceRepository using SQLite
type ResourceRepository struct {
	pool *ConnectionPool
}

// NewResourceRepository creates a new SQLite resource repository
func NewResourceRepository(pool *ConnectionPool) *ResourceRepository {
	return &ResourceRepository{pool: pool}
}

// CreateResource inserts a new resource.
func (r *ResourceRepository) CreateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO resources (id, name, capacity, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		resource.ID,
		resource.Name,
		resource.Capacity,
		resource.Category,
		formatTime(resource.CreatedAt),
		formatTime(resource.UpdatedAt),
	)
	return mapError(err)
}

// UpdateResource updates the mutable fields of an existing resource.
func (r *ResourceRepository) UpdateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE resources
		SET name = ?, capacity = ?, category = ?, updated_at = ?
		WHERE id = ?
	`,
		resource.Name,
		resource.Capacity,
		resource.Category,
		formatTime(resource.UpdatedAt),
		resource.ID,
	)
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

// GetResource retrieves a resource by ID.
func (r *ResourceRepository) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	if id == "" {
		return persistence.Resource{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, name, capacity, category, created_at, updated_at
		FROM resources
		WHERE id = ?
	`, id)
	return scanResource(row)
}

// ListResources returns all resources ordered by name then ID.
func (r *ResourceRepository) ListResources(ctx context.Context) ([]persistence.Resource, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, name, capacity, category, created_at, updated_at
		FROM resources
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	resources := make([]persistence.Resource, 0)
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return resources, nil
}

// DeleteResource removes a resource; its reservations cascade.
func (r *ResourceRepository) DeleteResource(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", id)
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

func scanResource(row rowScanner) (persistence.Resource, error) {
	var (
		resource             persistence.Resource
		createdAt, updatedAt string
	)
	if err := row.Scan(&resource.ID, &resource.Name, &resource.Capacity, &resource.Category, &createdAt, &updatedAt); err != nil {
		return persistence.Resource{}, mapError(err)
	}
	var err error
	if resource.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Resource{}, err
	}
	if resource.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Resource{}, err
	}
	return resource, nil
}
