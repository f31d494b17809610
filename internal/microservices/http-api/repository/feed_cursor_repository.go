package repository

import (
	"context"
	"time"

	"notifyhub/internal/microservices/http-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedCursorRepository keeps the in-app feed read watermark per (user, role).
type FeedCursorRepository interface {
	Get(ctx context.Context, userID string, role models.Role) (*models.FeedCursor, error)
	// Advance moves the watermark to at unless it is already later.
	Advance(ctx context.Context, userID string, role models.Role, at time.Time) error
}

type feedCursorRepository struct {
	db *gorm.DB
}

func NewFeedCursorRepository(db *gorm.DB) FeedCursorRepository {
	return &feedCursorRepository{db: db}
}

func (r *feedCursorRepository) Get(ctx context.Context, userID string, role models.Role) (*models.FeedCursor, error) {
	var cursor models.FeedCursor
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		First(&cursor).Error; err != nil {
		return nil, notFound(err)
	}
	return &cursor, nil
}

func (r *feedCursorRepository) Advance(ctx context.Context, userID string, role models.Role, at time.Time) error {
	cursor := models.FeedCursor{UserID: userID, Role: role, LastReadAt: at}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "role"}},
			DoUpdates: clause.Set{{
				Column: clause.Column{Name: "last_read_at"},
				Value:  gorm.Expr("GREATEST(notification_feed_cursors.last_read_at, EXCLUDED.last_read_at)"),
			}},
		}).
		Create(&cursor).Error
}
