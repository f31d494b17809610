package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation between two profiles. LastSeq is the highest message sequence handed out.
type Conversation struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	PairKey   string    `gorm:"type:text;not null;uniqueIndex" json:"-"`
	LastSeq   int64     `gorm:"not null" json:"last_seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// PairKey orders the two profile ids so either side finds the same conversation.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// ConversationMember carries the per-member read watermark. LastReadAt only moves forward.
type ConversationMember struct {
	ConversationID string     `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	ProfileID      string     `gorm:"type:uuid;primaryKey;index" json:"profile_id"`
	LastReadAt     *time.Time `json:"last_read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

// Message inside a conversation, ordered by (created_at, seq).
type Message struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_messages_conversation_seq,priority:1" json:"conversation_id"`
	Seq             int64     `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2" json:"seq"`
	SenderProfileID string    `gorm:"type:uuid;not null" json:"sender_profile_id"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	MessageType     string    `gorm:"type:text;not null" json:"message_type"`
	Meta            JSONMap   `gorm:"type:jsonb" json:"meta,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TypingState is ephemeral and never persisted to Postgres.
type TypingState struct {
	ConversationID string    `json:"conversation_id"`
	ProfileID      string    `json:"profile_id"`
	IsTyping       bool      `json:"is_typing"`
	LastTypedAt    time.Time `json:"last_typed_at"`
}
