package repository

import (
	"context"
	"time"

	"notifyhub/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// OutboxFilter narrows admin listings. Zero values mean "any".
type OutboxFilter struct {
	Status  models.OutboxStatus
	Channel models.Channel
	UserID  string
	Limit   int
}

// OutboxStat is one (channel, status) bucket of the health dashboard.
type OutboxStat struct {
	Channel models.Channel      `json:"channel"`
	Status  models.OutboxStatus `json:"status"`
	Count   int64               `json:"count"`
}

// OutboxRepository is the delivery ledger. Rows are never deleted and attempt_count is only
// ever incremented in SQL.
type OutboxRepository interface {
	CreateBatch(ctx context.Context, entries []*models.OutboxEntry) error
	FindByID(ctx context.Context, id string) (*models.OutboxEntry, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, status models.OutboxStatus, lastErr string, nextAttemptAt time.Time) error
	// ClaimDue leases up to limit due pending rows by pushing their next_attempt_at out by lease.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error)
	// Requeue moves a failed row back to pending, leased to the caller until now+lease.
	Requeue(ctx context.Context, id string, now time.Time, lease time.Duration) error
	List(ctx context.Context, filter OutboxFilter) ([]models.OutboxEntry, error)
	Stats(ctx context.Context) ([]OutboxStat, error)
	ListInApp(ctx context.Context, userID string, role models.Role, limit int) ([]models.OutboxEntry, error)
	CountInAppSince(ctx context.Context, userID string, role models.Role, since *time.Time) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) CreateBatch(ctx context.Context, entries []*models.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *outboxRepository) FindByID(ctx context.Context, id string) (*models.OutboxEntry, error) {
	var entry models.OutboxEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"status":        models.StatusSent,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    nil,
			"sent_at":       at,
			"updated_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboxRepository) RecordFailure(ctx context.Context, id string, status models.OutboxStatus, lastErr string, nextAttemptAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"status":          status,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      lastErr,
			"next_attempt_at": nextAttemptAt,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const claimDueSQL = `
UPDATE notification_outbox
SET next_attempt_at = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM notification_outbox
	WHERE status = 'pending' AND next_attempt_at <= ?
	ORDER BY next_attempt_at
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

func (r *outboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := r.db.WithContext(ctx).
		Raw(claimDueSQL, now.Add(lease), now, now, limit).
		Scan(&entries).Error
	return entries, err
}

func (r *outboxRepository) Requeue(ctx context.Context, id string, now time.Time, lease time.Duration) error {
	res := r.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ? AND status = ?", id, models.StatusFailed).
		Updates(map[string]any{
			"status":          models.StatusPending,
			"next_attempt_at": now.Add(lease),
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboxRepository) List(ctx context.Context, filter OutboxFilter) ([]models.OutboxEntry, error) {
	q := r.db.WithContext(ctx).Model(&models.OutboxEntry{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		q = q.Where("channel = ?", filter.Channel)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.OutboxEntry
	err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *outboxRepository) Stats(ctx context.Context) ([]OutboxStat, error) {
	var stats []OutboxStat
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Select("channel, status, COUNT(*) AS count").
		Group("channel, status").
		Order("channel, status").
		Scan(&stats).Error
	return stats, err
}

func (r *outboxRepository) ListInApp(ctx context.Context, userID string, role models.Role, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ? AND channel = ?", userID, role, models.ChannelInApp).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *outboxRepository) CountInAppSince(ctx context.Context, userID string, role models.Role, since *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("user_id = ? AND role = ? AND channel = ?", userID, role, models.ChannelInApp)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}
