package repository

import (
	"context"

	"notifyhub/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// ProfileRepository reads marketplace profiles. Writes belong to the hosted auth service.
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

func (r *profileRepository) ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).
		Where("role IN ?", roles).
		Order("created_at ASC").
		Find(&profiles).Error
	return profiles, err
}
