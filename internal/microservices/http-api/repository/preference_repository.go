package repository

import (
	"context"

	"notifyhub/internal/microservices/http-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository stores one preference row per (user_id, role).
type PreferenceRepository interface {
	FindByUserRole(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error)
	// CreateIfAbsent inserts pref unless a row for the same (user_id, role) already exists.
	CreateIfAbsent(ctx context.Context, pref *models.NotificationPreference) error
	// Update overwrites every mutable column. expectedVersion > 0 makes the write conditional.
	Update(ctx context.Context, pref *models.NotificationPreference, expectedVersion int64) (*models.NotificationPreference, error)
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) FindByUserRole(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		First(&pref).Error; err != nil {
		return nil, notFound(err)
	}
	return &pref, nil
}

func (r *preferenceRepository) CreateIfAbsent(ctx context.Context, pref *models.NotificationPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "role"}},
			DoNothing: true,
		}).
		Create(pref).Error
}

func (r *preferenceRepository) Update(ctx context.Context, pref *models.NotificationPreference, expectedVersion int64) (*models.NotificationPreference, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.NotificationPreference
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND role = ?", pref.UserID, pref.Role).
			First(&current).Error; err != nil {
			return notFound(err)
		}
		if expectedVersion > 0 && current.Version != expectedVersion {
			return ErrVersionConflict
		}

		pref.ID = current.ID
		pref.CreatedAt = current.CreatedAt
		pref.Version = current.Version + 1
		return tx.Save(pref).Error
	})
	if err != nil {
		return nil, err
	}
	return pref, nil
}
