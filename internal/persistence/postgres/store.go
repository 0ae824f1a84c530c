// Package postgres implements persistence.Store on gorm with the pgx driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/roombook/internal/persistence"
)

// Store serialises reservation writes per resource by locking the resource
// row (SELECT ... FOR UPDATE) for the duration of the overlap check and write.
type Store struct {
	db *gorm.DB
}

var _ persistence.Store = (*Store)(nil)

// Connect opens and pings a Postgres database.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&resourceModel{}, &reservationModel{}, &userModel{}); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type resourceModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	Capacity  int       `gorm:"column:capacity;not null;check:capacity > 0"`
	Category  string    `gorm:"column:category;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (resourceModel) TableName() string {
	return "resources"
}

type reservationModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	ResourceID string    `gorm:"column:resource_id;not null;index:idx_reservations_resource_window,priority:1"`
	OwnerID    string    `gorm:"column:owner_id;not null;index"`
	StartAt    time.Time `gorm:"column:start_at;not null;index:idx_reservations_resource_window,priority:2"`
	EndAt      time.Time `gorm:"column:end_at;not null;index:idx_reservations_resource_window,priority:3"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (reservationModel) TableName() string {
	return "reservations"
}

type userModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Role        string    `gorm:"column:role;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (userModel) TableName() string {
	return "users"
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		case pgErr.Code == "23503":
			return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
		case pgErr.Code == "23514", pgErr.Code == "23502":
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01", strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01":
			return fmt.Errorf("%w: %v", persistence.ErrUnavailable, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", persistence.ErrUnavailable, err)
	}
	return err
}
