package models

import "time"

// FeedCursor is the in-app feed watermark for one (user, role). Feed rows newer than LastReadAt are unread.
type FeedCursor struct {
	UserID     string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	Role       Role      `gorm:"type:text;primaryKey" json:"role"`
	LastReadAt time.Time `gorm:"not null" json:"last_read_at"`
}

func (FeedCursor) TableName() string {
	return "notification_feed_cursors"
}

// FeedItem is an in-app notification as shown to the client.
type FeedItem struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
