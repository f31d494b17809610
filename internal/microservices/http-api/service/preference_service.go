package service

import (
	"context"
	"errors"
	"time"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
)

// PreferenceService owns the per (user, role) delivery matrix. A missing row is never an
// error: the defaults are written on first read.
type PreferenceService interface {
	GetOrCreate(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error)
	// Update overwrites the row with pref. pref.Version > 0 makes the write conditional on it;
	// otherwise the last writer wins.
	Update(ctx context.Context, userID string, role models.Role, pref *models.NotificationPreference) (*models.NotificationPreference, error)
}

type preferenceService struct {
	repo      repository.PreferenceRepository
	defaultTZ string
}

func NewPreferenceService(repo repository.PreferenceRepository, defaultTZ string) PreferenceService {
	return &preferenceService{
		repo:      repo,
		defaultTZ: defaultTZ,
	}
}

func (s *preferenceService) GetOrCreate(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error) {
	if userID == "" {
		return nil, invalidf("user id is required")
	}
	if !role.Valid() {
		return nil, invalidf("unknown role %q", role)
	}

	pref, err := s.repo.FindByUserRole(ctx, userID, role)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// a concurrent first read may win the insert; either way the row is re-read
	if err := s.repo.CreateIfAbsent(ctx, models.DefaultPreference(userID, role, s.defaultTZ)); err != nil {
		return nil, err
	}
	return s.repo.FindByUserRole(ctx, userID, role)
}

func (s *preferenceService) Update(ctx context.Context, userID string, role models.Role, pref *models.NotificationPreference) (*models.NotificationPreference, error) {
	if pref == nil {
		return nil, invalidf("preferences are required")
	}
	if err := s.validate(pref); err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreate(ctx, userID, role); err != nil {
		return nil, err
	}

	next := *pref
	next.UserID = userID
	next.Role = role
	if next.QuietHoursTimezone == "" {
		next.QuietHoursTimezone = s.defaultTZ
	}
	return s.repo.Update(ctx, &next, pref.Version)
}

func (s *preferenceService) validate(pref *models.NotificationPreference) error {
	start, end := pref.QuietHoursStart, pref.QuietHoursEnd
	if (start == nil) != (end == nil) {
		return invalidf("quiet_hours_start and quiet_hours_end must be set together")
	}
	if start != nil {
		if _, err := parseClock(*start); err != nil {
			return invalidf("quiet_hours_start: %v", err)
		}
		if _, err := parseClock(*end); err != nil {
			return invalidf("quiet_hours_end: %v", err)
		}
	}
	if pref.QuietHoursTimezone != "" {
		if _, err := time.LoadLocation(pref.QuietHoursTimezone); err != nil {
			return invalidf("unknown timezone %q", pref.QuietHoursTimezone)
		}
	}
	return nil
}
