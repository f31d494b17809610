package models

import "time"

// Profile is the read-only view of marketplace accounts. Rows are owned by the hosted auth/profile service.
type Profile struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string    `gorm:"type:text" json:"email"`
	DisplayName string    `gorm:"type:text" json:"display_name"`
	Role        Role      `gorm:"type:text;not null;index" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Profile) TableName() string {
	return "profiles"
}
