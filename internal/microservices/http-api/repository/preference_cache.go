package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notifyhub/internal/microservices/http-api/models"

	"github.com/redis/go-redis/v9"
)

// cachedPreferenceRepository puts a Redis read-through cache in front of Postgres.
// Redis failures are logged and fall back to the database.
type cachedPreferenceRepository struct {
	next   PreferenceRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedPreferenceRepository wraps next. A nil client returns next unchanged.
func NewCachedPreferenceRepository(next PreferenceRepository, client *redis.Client, ttl time.Duration) PreferenceRepository {
	if client == nil {
		return next
	}
	return &cachedPreferenceRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

func preferenceCacheKey(userID string, role models.Role) string {
	return fmt.Sprintf("prefs:%s:%s", userID, role)
}

func (r *cachedPreferenceRepository) FindByUserRole(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error) {
	key := preferenceCacheKey(userID, role)

	raw, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var pref models.NotificationPreference
		if jsonErr := json.Unmarshal(raw, &pref); jsonErr == nil {
			return &pref, nil
		}
		r.logger.Warn("preference_cache_decode_failed", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("preference_cache_read_failed", "key", key, "error", err)
	}

	pref, err := r.next.FindByUserRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	r.store(ctx, pref)
	return pref, nil
}

func (r *cachedPreferenceRepository) CreateIfAbsent(ctx context.Context, pref *models.NotificationPreference) error {
	return r.next.CreateIfAbsent(ctx, pref)
}

func (r *cachedPreferenceRepository) Update(ctx context.Context, pref *models.NotificationPreference, expectedVersion int64) (*models.NotificationPreference, error) {
	updated, err := r.next.Update(ctx, pref, expectedVersion)
	if err != nil {
		return nil, err
	}
	if err := r.client.Del(ctx, preferenceCacheKey(pref.UserID, pref.Role)).Err(); err != nil {
		r.logger.Warn("preference_cache_invalidate_failed", "user_id", pref.UserID, "error", err)
	}
	return updated, nil
}

func (r *cachedPreferenceRepository) store(ctx context.Context, pref *models.NotificationPreference) {
	data, err := json.Marshal(pref)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, preferenceCacheKey(pref.UserID, pref.Role), data, r.ttl).Err(); err != nil {
		r.logger.Warn("preference_cache_write_failed", "user_id", pref.UserID, "error", err)
	}
}
