package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/scheduler"
)

// --- UserRepository implementation ---

func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}
	row := userModel{ID: user.ID, DisplayName: user.DisplayName, Role: user.Role, CreatedAt: user.CreatedAt.UTC()}
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	var row userModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return persistence.User{}, mapError(err)
	}
	return row.toPersistence(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]persistence.User, error) {
	var rows []userModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	users := make([]persistence.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toPersistence())
	}
	return users, nil
}

// DeleteUser removes a user and every reservation they own.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return mapError(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", id).Delete(&reservationModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&userModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	}))
}

// --- ResourceRepository implementation ---

func (s *Store) CreateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	row := resourceModelFrom(resource)
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) UpdateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	result := s.db.WithContext(ctx).Model(&resourceModel{}).Where("id = ?", resource.ID).Updates(map[string]any{
		"name":       resource.Name,
		"capacity":   resource.Capacity,
		"category":   resource.Category,
		"updated_at": resource.UpdatedAt.UTC(),
	})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	var row resourceModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return persistence.Resource{}, mapError(err)
	}
	return row.toPersistence(), nil
}

func (s *Store) ListResources(ctx context.Context) ([]persistence.Resource, error) {
	var rows []resourceModel
	if err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	resources := make([]persistence.Resource, 0, len(rows))
	for _, row := range rows {
		resources = append(resources, row.toPersistence())
	}
	return resources, nil
}

// DeleteResource removes a resource and its reservations.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	return mapError(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row resourceModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("resource_id = ?", id).Delete(&reservationModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&resourceModel{}).Error
	}))
}

// --- ReservationRepository implementation ---

func (s *Store) FindOverlapping(ctx context.Context, resourceID string, interval scheduler.Interval, excludeID string) ([]persistence.Reservation, error) {
	return findOverlapping(s.db.WithContext(ctx), resourceID, interval, excludeID)
}

// InsertReservation locks the resource row, checks for overlaps, and inserts.
func (s *Store) InsertReservation(ctx context.Context, reservation persistence.Reservation) (persistence.Reservation, error) {
	if err := reservation.Interval().Validate(); err != nil {
		return persistence.Reservation{}, persistence.ErrConstraintViolation
	}

	row := reservationModelFrom(reservation)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockResource(tx, reservation.ResourceID); err != nil {
			return err
		}
		conflicts, err := findOverlapping(tx, reservation.ResourceID, reservation.Interval(), "")
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return persistence.ErrConflict
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	return row.toPersistence(), nil
}

// ReplaceReservationInterval locks the owning resource row and moves the reservation.
func (s *Store) ReplaceReservationInterval(ctx context.Context, id string, interval scheduler.Interval, updatedAt time.Time) (persistence.Reservation, error) {
	if err := interval.Validate(); err != nil {
		return persistence.Reservation{}, persistence.ErrConstraintViolation
	}

	current, err := s.GetReservation(ctx, id)
	if err != nil {
		return persistence.Reservation{}, err
	}

	var updated reservationModel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockResource(tx, current.ResourceID); err != nil {
			return err
		}
		conflicts, err := findOverlapping(tx, current.ResourceID, interval, id)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return persistence.ErrConflict
		}
		result := tx.Model(&reservationModel{}).Where("id = ? AND resource_id = ?", id, current.ResourceID).Updates(map[string]any{
			"start_at":   interval.Start.UTC(),
			"end_at":     interval.End.UTC(),
			"updated_at": updatedAt.UTC(),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return persistence.ErrNotFound
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	return updated.toPersistence(), nil
}

func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&reservationModel{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	var row reservationModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	return row.toPersistence(), nil
}

func (s *Store) ListReservationsByOwner(ctx context.Context, ownerID string) ([]persistence.Reservation, error) {
	return listReservations(s.db.WithContext(ctx).Where("owner_id = ?", ownerID))
}

func (s *Store) ListAllReservations(ctx context.Context) ([]persistence.Reservation, error) {
	return listReservations(s.db.WithContext(ctx))
}

func lockResource(tx *gorm.DB, resourceID string) error {
	var row resourceModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", resourceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.ErrForeignKeyViolation
	}
	return err
}

func findOverlapping(db *gorm.DB, resourceID string, interval scheduler.Interval, excludeID string) ([]persistence.Reservation, error) {
	query := db.Where("resource_id = ? AND start_at < ? AND end_at > ?", resourceID, interval.End.UTC(), interval.Start.UTC())
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	return listReservations(query)
}

func listReservations(query *gorm.DB) ([]persistence.Reservation, error) {
	var rows []reservationModel
	if err := query.Order("start_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	reservations := make([]persistence.Reservation, 0, len(rows))
	for _, row := range rows {
		reservations = append(reservations, row.toPersistence())
	}
	return reservations, nil
}

func resourceModelFrom(r persistence.Resource) resourceModel {
	return resourceModel{
		ID:        r.ID,
		Name:      r.Name,
		Capacity:  r.Capacity,
		Category:  r.Category,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (m resourceModel) toPersistence() persistence.Resource {
	return persistence.Resource{
		ID:        m.ID,
		Name:      m.Name,
		Capacity:  m.Capacity,
		Category:  m.Category,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func reservationModelFrom(r persistence.Reservation) reservationModel {
	return reservationModel{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		OwnerID:    r.OwnerID,
		StartAt:    r.Start.UTC(),
		EndAt:      r.End.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (m reservationModel) toPersistence() persistence.Reservation {
	return persistence.Reservation{
		ID:         m.ID,
		ResourceID: m.ResourceID,
		OwnerID:    m.OwnerID,
		Start:      m.StartAt.UTC(),
		End:        m.EndAt.UTC(),
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func (m userModel) toPersistence() persistence.User {
	return persistence.User{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}
