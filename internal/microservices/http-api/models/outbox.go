package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxPayload is the opaque body handed to channel senders.
type OutboxPayload struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	URL      string         `json:"url,omitempty"`
	UserID   string         `json:"user_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (p OutboxPayload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *OutboxPayload) Scan(src any) error {
	return scanJSON(src, p)
}

// OutboxEntry is one (notification, channel) delivery record.
// attempt_count only grows and rows are kept for the admin health views.
type OutboxEntry struct {
	ID            string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string        `gorm:"type:uuid;not null;index" json:"user_id"`
	Role          Role          `gorm:"type:text;not null" json:"role"`
	Category      Category      `gorm:"type:text;not null" json:"category"`
	Channel       Channel       `gorm:"type:text;not null" json:"channel"`
	Status        OutboxStatus  `gorm:"type:text;not null;index:idx_notification_outbox_due,priority:1" json:"status"`
	AttemptCount  int           `gorm:"not null" json:"attempt_count"`
	LastError     *string       `gorm:"type:text" json:"last_error"`
	Payload       OutboxPayload `gorm:"type:jsonb;not null" json:"payload"`
	NextAttemptAt time.Time     `gorm:"not null;index:idx_notification_outbox_due,priority:2" json:"next_attempt_at"`
	SentAt        *time.Time    `json:"sent_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (OutboxEntry) TableName() string {
	return "notification_outbox"
}

// BeforeCreate assigns the id when the caller did not.
func (e *OutboxEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// NewOutboxEntry builds a pending row with no attempts yet. The row is leased to its creator
// until now+lease, so sweepers leave it alone while the first attempt runs.
func NewOutboxEntry(userID string, role Role, cat Category, ch Channel, payload OutboxPayload, now time.Time, lease time.Duration) *OutboxEntry {
	payload.UserID = userID
	return &OutboxEntry{
		ID:            uuid.New().String(),
		UserID:        userID,
		Role:          role,
		Category:      cat,
		Channel:       ch,
		Status:        StatusPending,
		Payload:       payload,
		NextAttemptAt: now.Add(lease),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
